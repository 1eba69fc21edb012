package enrich

import "github.com/fyrsmithlabs/chatlog/internal/classify"

// Category is a changelog-style grouping.
type Category string

const (
	CategoryFeat     Category = "feat"
	CategoryFix      Category = "fix"
	CategoryChore    Category = "chore"
	CategorySecurity Category = "security"
	CategoryOther    Category = "Other"
)

// Helper tags bridge a message type to a Category.
const (
	TagFunctionAdded        = "function added"
	TagFunctionModify       = "function modify"
	TagBugFixed             = "bug fixed"
	TagVulnerabilityPatched = "vulnerability patched"
	TagQuestion             = "question"
	TagDiscussion           = "discussion"
	TagOther                = "other"
)

var typeToTag = map[classify.Type]string{
	classify.TypeCodeChange:    TagFunctionModify,
	classify.TypeQuestion:      TagQuestion,
	classify.TypeClarification: TagDiscussion,
	classify.TypeDiscussion:    TagDiscussion,
}

var tagToCategory = map[string]Category{
	TagFunctionAdded:        CategoryFeat,
	TagFunctionModify:       CategoryFeat,
	TagBugFixed:             CategoryFix,
	TagVulnerabilityPatched: CategorySecurity,
	TagQuestion:             CategoryChore,
	TagDiscussion:           CategoryChore,
	TagOther:                CategoryChore,
}

var tagToImpact = map[string]string{
	TagBugFixed:       "Improved system stability and user experience",
	TagFunctionAdded:  "Enhanced functionality and user capabilities",
	TagFunctionModify: "Optimized existing features and performance",
	TagQuestion:       "Clarified requirements and improved understanding",
	TagDiscussion:     "Promoted knowledge sharing and collaboration",
	TagOther:          "Had a positive impact on project development",
}

// HelperTag maps a message type to its helper tag; unrecognized types map
// to "other".
func HelperTag(t classify.Type) string {
	if tag, ok := typeToTag[t]; ok {
		return tag
	}
	return TagOther
}

// TagToCategory maps a helper tag to its Category, or CategoryOther.
func TagToCategory(tag string) Category {
	if c, ok := tagToCategory[tag]; ok {
		return c
	}
	return CategoryOther
}

// CategoryFor maps a message type through its helper tag. Types with no
// helper tag of their own (error, parsing-failed, unknown) are CategoryOther.
func CategoryFor(t classify.Type) Category {
	tag, ok := typeToTag[t]
	if !ok {
		return CategoryOther
	}
	return TagToCategory(tag)
}

// Impact returns the one-line impact statement for a helper tag.
func Impact(tag string) string {
	if s, ok := tagToImpact[tag]; ok {
		return s
	}
	return tagToImpact[TagOther]
}
