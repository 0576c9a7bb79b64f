package copywriting

import (
	"fmt"
	"strings"

	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/services"
)

func planPrompt(state *models.CopywritingState) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "Plan marketing copy for the product %q.\n", state.ProductName)

	if len(state.Features) > 0 {
		fmt.Fprintf(&b, "Key features: %s.\n", strings.Join(state.Features, "; "))
	}

	if state.BrandGuidelines != nil && *state.BrandGuidelines != "" {
		fmt.Fprintf(&b, "Brand guidelines: %s\n", *state.BrandGuidelines)
	}

	b.WriteString("Outline the target audience, the core message, the tone and the sections of the copy " +
		"(headline, tagline, body, call to action).")

	return b.String(), nil
}

func draftPrompt(state *models.CopywritingState) (string, error) {
	if state.Plan == nil {
		return "", missingField("draft", "plan")
	}

	return fmt.Sprintf("Write marketing copy for %q following this plan:\n%s\n"+
		"Return a headline, a tagline, a body paragraph and a call to action.",
		state.ProductName, *state.Plan), nil
}

func critiquePrompt(state *models.CopywritingState) (string, error) {
	if state.Draft == nil {
		return "", missingField("critique", "draft")
	}

	return fmt.Sprintf("Critique this marketing copy for %q. List concrete problems with clarity, "+
		"tone, accuracy to the features and persuasiveness:\n%s", state.ProductName, *state.Draft), nil
}

func finalizePrompt(state *models.CopywritingState) (string, error) {
	if state.Draft == nil {
		return "", missingField("finalize", "draft")
	}

	if state.Critique == nil {
		return "", missingField("finalize", "critique")
	}

	return fmt.Sprintf("Rewrite the draft addressing every point of the critique. Return only the final copy.\n"+
		"Draft:\n%s\nCritique:\n%s", *state.Draft, *state.Critique), nil
}

func missingField(stage, field string) error {
	return services.NewValidationError("copywriting."+stage, stage+" requires a "+field, nil)
}
