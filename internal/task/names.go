package task

// NameFormatter renders the human-readable display name of a task from its
// kind and current detail. It is injected at construction so that
// localisation does not depend on process-wide state.
type NameFormatter interface {
	FormatName(kind, detail string) string
}

// NameFormatterFunc adapts a function to the NameFormatter interface
type NameFormatterFunc func(kind, detail string) string

// FormatName calls f(kind, detail)
func (f NameFormatterFunc) FormatName(kind, detail string) string {
	return f(kind, detail)
}

// DefaultNameFormatter renders "kind" or "kind: detail"
type DefaultNameFormatter struct{}

// FormatName implements NameFormatter
func (DefaultNameFormatter) FormatName(kind, detail string) string {
	return joinName(kind, detail)
}

// CatalogNameFormatter looks the kind up in a message catalog, such as the
// translated labels configured for the UI. Unknown kinds are shown as is.
type CatalogNameFormatter struct {
	Labels map[string]string
}

// NewCatalogNameFormatter creates a formatter over a copy of labels
func NewCatalogNameFormatter(labels map[string]string) CatalogNameFormatter {
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	return CatalogNameFormatter{Labels: copied}
}

// FormatName implements NameFormatter
func (c CatalogNameFormatter) FormatName(kind, detail string) string {
	label, ok := c.Labels[kind]
	if !ok || label == "" {
		label = kind
	}
	return joinName(label, detail)
}

func joinName(label, detail string) string {
	if detail == "" {
		return label
	}
	return label + ": " + detail
}
