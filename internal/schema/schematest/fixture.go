// Package schematest provides a small university schema shared by tests.
package schematest

import (
	"testing"

	"github.com/chatidea/chatidea/internal/schema"
)

func TeacherToDepartment() schema.Reference {
	return schema.Reference{FromTable: "teacher", FromColumns: []string{"department_id"}, ToTable: "department", ToColumns: []string{"id"}}
}

func DepartmentToBuilding() schema.Reference {
	return schema.Reference{FromTable: "department", FromColumns: []string{"building_id"}, ToTable: "building", ToColumns: []string{"id"}}
}

func TeacherToCourse() schema.Reference {
	return schema.Reference{FromTable: "teacher", FromColumns: []string{"id"}, ToTable: "course", ToColumns: []string{"teacher_id"}}
}

// Documents describes teachers, courses, departments and buildings. Teacher
// is primary concept 1 and course is primary concept 2.
func Documents() schema.Documents {
	return schema.Documents{
		Concepts: []schema.Concept{
			{
				Name:    "teacher",
				Aliases: []string{"professor"},
				Kind:    schema.KindPrimary,
				Table:   "teacher",
				ShowColumns: []schema.ShowColumn{
					{Columns: []string{"name", "surname"}},
				},
				Categories: []schema.Category{
					{Column: "department_id", Alias: "department", Keyword: "department"},
				},
				Attributes: []schema.Attribute{
					{Type: schema.TypeWord, Columns: []string{"name", "surname"}},
					{Keyword: "aged", Type: schema.TypeNumber, Columns: []string{"age"}},
					{Keyword: "in department", Type: schema.TypeWord, Columns: []string{"name"}, By: []schema.Reference{TeacherToDepartment()}},
					{Keyword: "in building", Type: schema.TypeWord, Columns: []string{"name"}, By: []schema.Reference{TeacherToDepartment(), DepartmentToBuilding()}},
					{Keyword: "teaching", Type: schema.TypeWord, Columns: []string{"title"}, By: []schema.Reference{TeacherToCourse()}},
				},
				Relations: []schema.Relation{
					{Keyword: "courses", Concept: "course", By: []schema.Reference{TeacherToCourse()}},
					{Keyword: "department", Concept: "department", By: []schema.Reference{TeacherToDepartment()}},
				},
			},
			{
				Name:  "course",
				Kind:  schema.KindPrimary,
				Table: "course",
				ShowColumns: []schema.ShowColumn{
					{Columns: []string{"title"}},
					{Keyword: "credits", Columns: []string{"credits"}},
				},
				Attributes: []schema.Attribute{
					{Type: schema.TypeWord, Columns: []string{"title"}},
					{Keyword: "with credits", Type: schema.TypeNumber, Columns: []string{"credits"}},
				},
				Relations: []schema.Relation{
					{Keyword: "teacher", Concept: "teacher", By: []schema.Reference{TeacherToCourse().Reversed()}},
				},
			},
			{
				Name:  "department",
				Kind:  schema.KindSecondary,
				Table: "department",
				ShowColumns: []schema.ShowColumn{
					{Columns: []string{"name"}},
				},
				Attributes: []schema.Attribute{
					{Type: schema.TypeWord, Columns: []string{"name"}},
				},
			},
		},
		Tables: map[string]schema.Table{
			"teacher": {
				Columns:    []string{"id", "name", "surname", "age", "department_id"},
				PrimaryKey: []string{"id"},
				References: []schema.ForeignKey{
					{ToTable: "department", FromColumn: "department_id", ToColumn: "id", ShowColumn: "name"},
				},
			},
			"course": {
				Columns:    []string{"id", "title", "credits", "teacher_id"},
				PrimaryKey: []string{"id"},
				References: []schema.ForeignKey{
					{ToTable: "teacher", FromColumn: "teacher_id", ToColumn: "id", ShowColumn: "surname"},
				},
			},
			"department": {
				Columns:    []string{"id", "name", "building_id"},
				PrimaryKey: []string{"id"},
				References: []schema.ForeignKey{
					{ToTable: "building", FromColumn: "building_id", ToColumn: "id", ShowColumn: "name"},
				},
			},
			"building": {
				Columns:       []string{"id", "name", "city"},
				PrimaryKey:    []string{"id"},
				ColumnAliases: map[string]string{"city": "City"},
			},
		},
		Views: map[string]schema.View{
			"teacher": {Columns: []schema.ViewColumn{
				{Attribute: "name", Display: "Name"},
				{Attribute: "surname", Display: "Surname"},
				{Attribute: "age", Display: "Age"},
				{Attribute: "department_id", Display: "Department"},
			}},
			"course": {Columns: []schema.ViewColumn{
				{Attribute: "title", Display: "Title"},
				{Attribute: "credits", Display: "Credits"},
				{Attribute: "teacher_id", Display: "Teacher"},
			}},
		},
		Similars: [][]string{{"1_1", "2_1"}},
	}
}

func Registry(t testing.TB) *schema.Registry {
	t.Helper()
	registry, err := schema.New(Documents())
	if err != nil {
		t.Fatalf("schema.New() error = %v", err)
	}
	return registry
}
