package canvas

// #region imports
import (
	"fmt"
	"strings"
)

// #endregion

// #region context

// Context is the per-query view a reasoning pass works over: the shared
// Canvas plus the question and any earlier pass answers. WithPrior returns a
// new Context; neither the receiver nor the Canvas is modified.
type Context struct {
	canvas   *Canvas
	question string
	prior    []string
}

// NewContext builds the initial context for a question.
func NewContext(c *Canvas, question string) Context {
	return Context{canvas: c, question: strings.TrimSpace(question)}
}

// WithPrior derives a context that also carries answer as additional context.
func (x Context) WithPrior(answer string) Context {
	prior := make([]string, len(x.prior), len(x.prior)+1)
	copy(prior, x.prior)
	return Context{
		canvas:   x.canvas,
		question: x.question,
		prior:    append(prior, answer),
	}
}

// Prior returns a copy of the earlier answers carried by this context.
func (x Context) Prior() []string {
	return append([]string(nil), x.prior...)
}

// Question returns the trimmed question text.
func (x Context) Question() string {
	return x.question
}

// #endregion

// #region render

// Render formats the prompt for pass step of total.
func (x Context) Render(step, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "QUESTION: %s\n", x.question)
	b.WriteString(renderCanvas(x.canvas))

	var instructions string
	switch {
	case total <= 1:
		instructions = "Provide a direct, well-structured answer."
	case step == 1:
		instructions = "Draft reasoning with numbered arguments and highlight gaps."
	case step == total:
		instructions = "Produce the final polished answer that resolves earlier critiques."
	default:
		instructions = "Critique the previous draft and outline concrete improvements."
	}
	fmt.Fprintf(&b, "\nStep %d/%d. %s", step, total, instructions)

	if len(x.prior) > 0 {
		fmt.Fprintf(&b, "\nPrior output:\n%s", strings.TrimSpace(x.prior[len(x.prior)-1]))
	}
	return b.String()
}

func renderCanvas(c *Canvas) string {
	if c == nil {
		return "[Canvas]\n(none)\n"
	}
	var b strings.Builder
	b.WriteString("[Canvas]\nKey points:\n")
	writeList(&b, c.KeyPoints)
	b.WriteString("Entities:\n")
	names := make([]string, len(c.Entities))
	for i, e := range c.Entities {
		names[i] = fmt.Sprintf("%s (%s, %d)", e.Name, e.Type, e.Mentions)
	}
	writeList(&b, names)
	b.WriteString("Quotes:\n")
	writeList(&b, c.Quotes)
	if c.Notes != "" {
		fmt.Fprintf(&b, "Notes:\n%s\n", c.Notes)
	}
	return b.String()
}

func writeList(b *strings.Builder, items []string) {
	if len(items) == 0 {
		b.WriteString(" - (none)\n")
		return
	}
	for _, it := range items {
		fmt.Fprintf(b, " - %s\n", it)
	}
}

// #endregion
