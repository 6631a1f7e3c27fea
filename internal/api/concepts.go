package api

import (
	"net/http"

	"github.com/chatidea/chatidea/internal/auth"
	"github.com/chatidea/chatidea/internal/schema"
)

type conceptResponse struct {
	Name       string   `json:"name"`
	Plural     string   `json:"plural"`
	Aliases    []string `json:"aliases"`
	Attributes []string `json:"attributes"`
	Relations  []string `json:"relations"`
	Categories []string `json:"categories"`
}

func handleListConcepts(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !chatConfigured(deps, w, r) {
		return
	}
	if err := auth.RequireRole(r.Context(), roleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	registry := deps.Chat.Registry()
	if registry == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "REGISTRY_NOT_LOADED", "concept registry is not loaded", true, nil)
		return
	}

	concepts := registry.PrimaryConcepts()
	out := make([]conceptResponse, 0, len(concepts))
	for _, concept := range concepts {
		out = append(out, describeConcept(concept))
	}
	writeJSON(w, http.StatusOK, map[string]any{"concepts": out})
}

func describeConcept(concept schema.Concept) conceptResponse {
	response := conceptResponse{
		Name:       concept.Name,
		Plural:     concept.PluralName(),
		Aliases:    append([]string{}, concept.Aliases...),
		Attributes: append([]string{}, concept.Keywords()...),
		Relations:  make([]string, 0, len(concept.Relations)),
		Categories: make([]string, 0, len(concept.Categories)),
	}
	for _, relation := range concept.Relations {
		response.Relations = append(response.Relations, relation.Keyword)
	}
	for _, category := range concept.Categories {
		response.Categories = append(response.Categories, category.Label())
	}
	return response
}
