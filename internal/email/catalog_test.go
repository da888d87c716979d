package email

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

type devotionParams struct {
	Name  string         `json:"name"`
	When  string         `json:"when"`
	Where string         `json:"where"`
	Items []devotionItem `json:"items"`
}

type devotionItem struct {
	Item        string `json:"item"`
	BhajanOrTFD string `json:"bhajanOrTFD"`
	Scale       string `json:"scale"`
}

func TestDefaultCatalogNames(t *testing.T) {
	want := []string{"BirthdayHomeBhajanSignupConfirmation", "DevotionSignupConfirmation", "ServiceSignupConfirmation"}
	if got := DefaultCatalog().Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
}

func TestRenderUsesJSONFieldNames(t *testing.T) {
	rendered, err := DefaultCatalog().Render("DevotionSignupConfirmation", devotionParams{
		Name:  "Avery",
		When:  "2030-01-05",
		Where: "Center",
		Items: []devotionItem{{Item: "Bhajan 3", BhajanOrTFD: "Govinda Gopala", Scale: "C#"}},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if rendered.Subject != "Thank you for signing up to lead devotion on 2030-01-05" {
		t.Errorf("Subject = %q", rendered.Subject)
	}
	if !strings.Contains(rendered.HTML, "Bhajan 3: Govinda Gopala (scale C#)") {
		t.Errorf("HTML missing item line:\n%s", rendered.HTML)
	}
}

func TestRenderEscapesHTML(t *testing.T) {
	rendered, err := DefaultCatalog().Render("BirthdayHomeBhajanSignupConfirmation", map[string]string{
		"name":    "<script>x</script>",
		"address": "1 Main St",
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(rendered.HTML, "<script>") {
		t.Error("HTML should escape parameters")
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	if _, err := DefaultCatalog().Render("Nope", nil); !errors.Is(err, ErrUnknownTemplate) {
		t.Fatalf("Render() error = %v, want ErrUnknownTemplate", err)
	}
}

func TestParseCatalogRequiresSubjectAndHTML(t *testing.T) {
	if _, err := ParseCatalog([]byte("Broken:\n  subject: hi\n")); err == nil {
		t.Fatal("expected error for template without html")
	}
	if _, err := ParseCatalog([]byte("- a\n- b\n")); err == nil {
		t.Fatal("expected YAML error")
	}
}
