package llm_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/consulta/advisor-service/internal/i18n"
	"github.com/consulta/advisor-service/internal/llm"
	"github.com/consulta/advisor-service/internal/model"
)

func strPtr(s string) *string { return &s }

func TestSplitTitle(t *testing.T) {
	title, body := llm.SplitTitle("TITLE: Opening a cafe\n\nStart with a business plan.\nThen find a location.")
	assert.Equal(t, "Opening a cafe", title)
	assert.Equal(t, "Start with a business plan.\nThen find a location.", body)

	// No blank separator after the title line.
	title, body = llm.SplitTitle("TITLE: Taxes\nPay them quarterly.")
	assert.Equal(t, "Taxes", title)
	assert.Equal(t, "Pay them quarterly.", body)

	// Title line only.
	title, body = llm.SplitTitle("TITLE: Alone")
	assert.Equal(t, "Alone", title)
	assert.Equal(t, "", body)

	// No TITLE prefix passes through untouched.
	title, body = llm.SplitTitle("Just an answer.\nSecond line.")
	assert.Equal(t, "", title)
	assert.Equal(t, "Just an answer.\nSecond line.", body)

	// Empty title after the prefix still consumes the line.
	title, body = llm.SplitTitle("TITLE:\n\nBody here.")
	assert.Equal(t, "", title)
	assert.Equal(t, "Body here.", body)
}

func TestSplitTitleTruncatesLongTitles(t *testing.T) {
	long := strings.Repeat("я", 120)
	title, _ := llm.SplitTitle("TITLE: " + long + "\n\nbody")
	assert.Equal(t, strings.Repeat("я", 80), title)
}

func TestFallbackTitle(t *testing.T) {
	assert.Equal(t, "First real line", llm.FallbackTitle("\n\n  First real line\nmore"))
	assert.Equal(t, "", llm.FallbackTitle("   \n\t\n"))
}

func TestSystemPromptEnglish(t *testing.T) {
	actx := model.AdvisoryContext{
		UserRole:      strPtr("marketer"),
		BusinessStage: strPtr("startup"),
		BusinessNiche: strPtr("specialty coffee"),
		Goal:          strPtr("increase_revenue"),
		Region:        strPtr("Berlin"),
		Urgency:       strPtr("urgent"),
	}
	prompt := llm.SystemPrompt(i18n.LocaleEN, "marketing", "coffee shop", actx)

	assert.Contains(t, prompt, "The user is a marketer.")
	assert.Contains(t, prompt, "Business stage: just starting out.")
	assert.Contains(t, prompt, "The user owns a business in: coffee shop.")
	assert.Contains(t, prompt, "Niche: specialty coffee.")
	assert.Contains(t, prompt, "Current request goal: increase revenue.")
	assert.Contains(t, prompt, "Region: Berlin.")
	assert.Contains(t, prompt, "urgent question")
	assert.Contains(t, prompt, "TITLE: <brief title>")
	assert.Contains(t, prompt, "Help with marketing")
}

func TestSystemPromptRussian(t *testing.T) {
	prompt := llm.SystemPrompt(i18n.LocaleRU, "legal", "общий бизнес", model.AdvisoryContext{})

	assert.Contains(t, prompt, "бизнес-консультант")
	assert.Contains(t, prompt, "Сфера бизнеса: общий бизнес.")
	assert.Contains(t, prompt, "Консультируй по юридическим вопросам")
	assert.Contains(t, prompt, "на русском языке")
	// Context fields that were never provided stay out of the prompt.
	assert.NotContains(t, prompt, "Пользователь -")
	assert.NotContains(t, prompt, "Регион:")
}

func TestSystemPromptUnknownCategory(t *testing.T) {
	prompt := llm.SystemPrompt(i18n.LocaleEN, "general", "retail", model.AdvisoryContext{})
	assert.Contains(t, prompt, "general business questions")
}

func TestDefaultBusinessType(t *testing.T) {
	assert.Equal(t, "general business", llm.DefaultBusinessType(i18n.LocaleEN))
	assert.Equal(t, "общий бизнес", llm.DefaultBusinessType(i18n.LocaleRU))
}
