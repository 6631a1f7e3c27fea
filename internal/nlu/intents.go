package nlu

const (
	IntentStart                 = "start"
	IntentHelp                  = "help"
	IntentHelpElements          = "help_elements"
	IntentHelpHistory           = "help_history"
	IntentHelpGoBack            = "help_go_back"
	IntentMoreInfoFind          = "more_info_find"
	IntentMoreInfoFilter        = "more_info_filter"
	IntentFindByAttribute       = "find_el_by_attr"
	IntentFilterByAttribute     = "filter_el_by_attr"
	IntentCrossRelation         = "cross_rel"
	IntentShowRelations         = "show_relations"
	IntentShowMoreElements      = "show_more_el"
	IntentShowLessElements      = "show_less_el"
	IntentSelectByPosition      = "select_el_by_pos"
	IntentOrderBy               = "order_by"
	IntentOrderByAttribute      = "order_by_attr"
	IntentShowMoreExamples      = "show_more_examples"
	IntentShowMoreExamplesAttr  = "show_more_examples_attr"
	IntentViewContextElement    = "view_context_el"
	IntentShowContext           = "show_context"
	IntentShowMoreContext       = "show_more_context"
	IntentGoBackToPosition      = "go_back_to_context_pos"
	IntentShowTableCategories   = "show_table_categories"
	IntentFindByCategory        = "find_el_by_category"
	IntentAmbiguitySolver       = "ambiguity_solver"
	IntentFallback              = "fallback"
)

const (
	DefaultIntentThreshold  = 0.4
	payloadEntityConfidence = 1.0
	payloadIntentConfidence = 1.0
)
