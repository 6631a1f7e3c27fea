package schema_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chatidea/chatidea/internal/joingraph"
	"github.com/chatidea/chatidea/internal/schema"
	"github.com/chatidea/chatidea/internal/schema/schematest"
	"github.com/chatidea/chatidea/internal/storage/storagetest"
)

func TestRegistryLookups(t *testing.T) {
	registry := schematest.Registry(t)

	concept, ok := registry.ConceptAt(1)
	if !ok || concept.Name != "teacher" {
		t.Fatalf("ConceptAt(1) = %q, %v", concept.Name, ok)
	}
	if got := registry.IndexOf("course"); got != 2 {
		t.Fatalf("IndexOf(course) = %d", got)
	}
	if got := registry.IndexOf("department"); got != 0 {
		t.Fatalf("IndexOf(department) = %d, secondary concepts are not indexed", got)
	}
	if names := registry.PrimaryNames(); len(names) != 2 {
		t.Fatalf("PrimaryNames() = %v", names)
	}
	if name, ok := registry.CanonicalName("professor"); !ok || name != "teacher" {
		t.Fatalf("CanonicalName(professor) = %q, %v", name, ok)
	}
	if name, ok := registry.CanonicalName("courses"); !ok || name != "course" {
		t.Fatalf("CanonicalName(courses) = %q, %v", name, ok)
	}
	if concept, ok := registry.ConceptByTable("department"); !ok || concept.Name != "department" {
		t.Fatalf("ConceptByTable(department) = %q, %v", concept.Name, ok)
	}
	if names := strings.Join(registry.TableNames(), ","); names != "building,course,department,teacher" {
		t.Fatalf("TableNames() = %s", names)
	}
}

func TestRegistryViewFallsBackToColumnAliases(t *testing.T) {
	registry := schematest.Registry(t)
	view := registry.View("building")
	if display, ok := view.Display("city"); !ok || display != "City" {
		t.Fatalf("Display(city) = %q, %v", display, ok)
	}
	if display, ok := view.Display("name"); !ok || display != "name" {
		t.Fatalf("Display(name) = %q, %v", display, ok)
	}
	if display, _ := registry.View("teacher").Display("department_id"); display != "Department" {
		t.Fatalf("configured view display = %q", display)
	}
}

func TestRegistrySimilarSlots(t *testing.T) {
	registry := schematest.Registry(t)
	if got := registry.SimilarSlots("2_1"); strings.Join(got, ",") != "1_1,2_1" {
		t.Fatalf("SimilarSlots(2_1) = %v", got)
	}
	if got := registry.SimilarSlots("1_3"); strings.Join(got, ",") != "1_3" {
		t.Fatalf("SimilarSlots(1_3) = %v", got)
	}
}

func TestConceptSummary(t *testing.T) {
	registry := schematest.Registry(t)
	course, _ := registry.Concept("course")
	got := course.Summary(map[string]any{"title": "Databases", "credits": int64(6)})
	if got != "Databases, credits: 6" {
		t.Fatalf("Summary() = %q", got)
	}
}

func TestNewRejectsUnknownTable(t *testing.T) {
	docs := schematest.Documents()
	docs.Concepts[0].Table = "teachers"
	_, err := schema.New(docs)
	if !errors.Is(err, schema.ErrInvalidConfig) {
		t.Fatalf("New() error = %v, want ErrInvalidConfig", err)
	}
	if !strings.Contains(err.Error(), `unknown table "teachers"`) {
		t.Fatalf("error = %v", err)
	}
}

func TestNewRejectsMissingAttributeColumn(t *testing.T) {
	docs := schematest.Documents()
	docs.Concepts[0].Attributes[2].Columns = []string{"title"}
	_, err := schema.New(docs)
	if !errors.Is(err, schema.ErrInvalidConfig) {
		t.Fatalf("New() error = %v, want ErrInvalidConfig", err)
	}
}

func TestNewRejectsBrokenChain(t *testing.T) {
	docs := schematest.Documents()
	docs.Concepts[0].Attributes[3].By = []schema.Reference{schematest.DepartmentToBuilding()}
	_, err := schema.New(docs)
	if err == nil || !strings.Contains(err.Error(), "hop 1 starts at department") {
		t.Fatalf("New() error = %v", err)
	}
}

func TestNewRejectsReferenceCycle(t *testing.T) {
	docs := schematest.Documents()
	department := docs.Tables["department"]
	department.Columns = append(department.Columns, "head_id")
	docs.Tables["department"] = department
	docs.Concepts[0].Attributes = append(docs.Concepts[0].Attributes, schema.Attribute{
		Keyword: "colleague of head",
		Type:    schema.TypeWord,
		Columns: []string{"surname"},
		By: []schema.Reference{
			schematest.TeacherToDepartment(),
			{FromTable: "department", FromColumns: []string{"head_id"}, ToTable: "teacher", ToColumns: []string{"id"}},
		},
	})

	_, err := schema.New(docs)
	if !errors.Is(err, schema.ErrInvalidConfig) {
		t.Fatalf("New() error = %v, want ErrInvalidConfig", err)
	}
	if !errors.Is(err, joingraph.ErrCycle) {
		t.Fatalf("New() error = %v, want ErrCycle", err)
	}
}

func TestNewAcceptsRawSelfReference(t *testing.T) {
	withMentor := func(show string) schema.Documents {
		docs := schematest.Documents()
		teacher := docs.Tables["teacher"]
		teacher.Columns = append(append([]string(nil), teacher.Columns...), "mentor_id")
		teacher.References = append(append([]schema.ForeignKey(nil), teacher.References...),
			schema.ForeignKey{ToTable: "teacher", FromColumn: "mentor_id", ToColumn: "id", ShowColumn: show})
		docs.Tables["teacher"] = teacher
		return docs
	}

	registry, err := schema.New(withMentor(""))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	table, _ := registry.Table("teacher")
	if _, ok := table.ForeignKey("mentor_id"); ok {
		t.Fatal("mentor_id has no show column and must not be unfolded")
	}

	if _, err := schema.New(withMentor("surname")); !errors.Is(err, joingraph.ErrCycle) {
		t.Fatalf("New() error = %v, want ErrCycle for an unfolded self reference", err)
	}
}

func TestNewRejectsRelationEndingElsewhere(t *testing.T) {
	docs := schematest.Documents()
	docs.Concepts[0].Relations[0].Concept = "department"
	_, err := schema.New(docs)
	if err == nil || !strings.Contains(err.Error(), "ends at course") {
		t.Fatalf("New() error = %v", err)
	}
}

func TestLoadDirReadsYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "concepts.yaml", `
- element_name: city
  type: primary
  table_name: city
  show_columns:
    - keyword: ""
      columns: [name]
  attributes:
    - keyword: ""
      type: word
      columns: [name]
    - keyword: with population
      type: number
      columns: [population]
`)
	writeFile(t, dir, "schema.json", `{
  "city": {"column_list": ["id", "name", "population"], "primary_key_list": ["id"], "references": []}
}`)
	writeFile(t, dir, "similars.json", `[{"similars": [["1_1", "1_2"]]}]`)

	registry, err := schema.LoadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	city, ok := registry.Concept("city")
	if !ok {
		t.Fatal("expected city concept")
	}
	if city.Attributes[1].Type != schema.TypeNumber {
		t.Fatalf("attribute type = %q, want num", city.Attributes[1].Type)
	}
	if got := registry.SimilarSlots("1_2"); len(got) != 2 {
		t.Fatalf("SimilarSlots() = %v", got)
	}
}

func TestLoadObjectStoreReadsUnderPrefix(t *testing.T) {
	store := storagetest.NewMemoryStore()
	store.PutBytes("config/uni/concepts.json", []byte(`[
  {"element_name": "city", "type": "primary", "table_name": "city",
   "attributes": [{"keyword": "", "type": "word", "columns": ["name"]}]}
]`))
	store.PutBytes("config/uni/schema.yml", []byte(`
city:
  column_list: [id, name]
  primary_key_list: [id]
`))

	registry, err := schema.LoadObjectStore(context.Background(), store, "config/uni")
	if err != nil {
		t.Fatalf("LoadObjectStore() error = %v", err)
	}
	if names := registry.PrimaryNames(); len(names) != 1 || names[0] != "city" {
		t.Fatalf("PrimaryNames() = %v", names)
	}
	gets := strings.Join(store.Gets(), ",")
	if !strings.HasPrefix(gets, "config/uni/concepts.yaml,config/uni/concepts.yml,config/uni/concepts.json,config/uni/schema.yaml,config/uni/schema.yml") {
		t.Fatalf("Gets() = %s", gets)
	}

	if _, err := schema.LoadObjectStore(context.Background(), store, "../escape"); err == nil {
		t.Fatal("LoadObjectStore() expected error for an invalid prefix")
	}
}

func TestLoadDirRequiresConcepts(t *testing.T) {
	_, err := schema.LoadDir(context.Background(), t.TempDir())
	if !errors.Is(err, schema.ErrInvalidConfig) {
		t.Fatalf("LoadDir() error = %v, want ErrInvalidConfig", err)
	}
}

func TestDecodeRejectsUnknownExtension(t *testing.T) {
	var out []schema.Concept
	if err := schema.Decode("concepts.toml", []byte(""), &out); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoadDirReadsBundledResources(t *testing.T) {
	registry, err := schema.LoadDir(context.Background(), filepath.Join("..", "..", "resources"))
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if got := strings.Join(registry.PrimaryNames(), ","); got != "teacher,course" {
		t.Fatalf("PrimaryNames() = %s", got)
	}
	if got := strings.Join(registry.TableNames(), ","); got != "building,course,department,teacher" {
		t.Fatalf("TableNames() = %s", got)
	}
	if slots := registry.SimilarSlots("1_1"); len(slots) != 2 {
		t.Fatalf("SimilarSlots(1_1) = %v", slots)
	}
}
