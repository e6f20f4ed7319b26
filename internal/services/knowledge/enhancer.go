package knowledge

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ternarybob/ice/internal/models"
)

const frontmatterDelimiter = "---"

// ParseFrontmatter splits YAML frontmatter from a markdown body. Email
// notes and hand-written research arrive with a leading `---` block
// carrying symbols, tags, and dates. Returns the parsed metadata and the
// body with the block stripped. Content without frontmatter passes
// through unchanged with nil metadata.
func ParseFrontmatter(markdown string) (map[string]interface{}, string, error) {
	if !strings.HasPrefix(markdown, frontmatterDelimiter+"\n") {
		return nil, markdown, nil
	}

	rest := markdown[len(frontmatterDelimiter)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelimiter+"\n")
	if end < 0 {
		if !strings.HasSuffix(rest, "\n"+frontmatterDelimiter) {
			return nil, markdown, nil
		}
		end = len(rest) - len(frontmatterDelimiter) - 1
	}

	block := rest[:end]
	body := rest[end+len(frontmatterDelimiter)+1:]
	body = strings.TrimLeft(body, "\n")

	metadata := map[string]interface{}{}
	if err := yaml.Unmarshal([]byte(block), &metadata); err != nil {
		return nil, markdown, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	return metadata, body, nil
}

// insertion is one markup tag pinned to a content offset.
type insertion struct {
	offset int
	tag    string
}

// EnhanceDocument builds the markup-tagged rendition of a document:
// entity tags woven in after the first occurrence of each entity, plus a
// trailing entity section. Graph construction and keyword retrieval both
// key off the explicit markers.
func EnhanceDocument(doc *models.Document, entities []models.Entity, relationships []models.Relationship) string {
	content := doc.ContentMarkdown

	insertions := make([]insertion, 0, len(entities))
	seen := make(map[string]bool)
	lowered := strings.ToLower(content)

	for _, entity := range entities {
		tag := markupTag(entity)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true

		offset := firstOccurrence(content, lowered, entity.Value)
		if offset < 0 {
			continue
		}
		insertions = append(insertions, insertion{offset: offset, tag: tag})
	}

	sort.SliceStable(insertions, func(i, j int) bool {
		return insertions[i].offset < insertions[j].offset
	})

	var sb strings.Builder
	sb.Grow(len(content) + len(insertions)*24)
	prev := 0
	for _, ins := range insertions {
		sb.WriteString(content[prev:ins.offset])
		sb.WriteString(" ")
		sb.WriteString(ins.tag)
		prev = ins.offset
	}
	sb.WriteString(content[prev:])

	if footer := entityFooter(entities, relationships); footer != "" {
		sb.WriteString("\n\n")
		sb.WriteString(footer)
	}

	return sb.String()
}

// markupTag renders the inline tag for an entity, or "" for types that
// only appear in the footer.
func markupTag(entity models.Entity) string {
	switch entity.Type {
	case models.EntityTicker:
		return fmt.Sprintf("[TICKER:%s]", entity.Normalized)
	case models.EntityCompany:
		return fmt.Sprintf("[COMPANY:%s]", entity.Value)
	case models.EntityRating:
		firm := entity.Attributes["firm"]
		action := entity.Attributes["action"]
		level := entity.Attributes["level"]
		if firm == "" && action == "" && level == "" {
			return ""
		}
		return fmt.Sprintf("[RATING:%s|%s|%s]", firm, action, level)
	case models.EntityFinancialMetric:
		metric := entity.Attributes["metric"]
		value := entity.Attributes["value"]
		if metric == "" || value == "" {
			return ""
		}
		period := entity.Attributes["period"]
		return fmt.Sprintf("[METRIC:%s|%s|%s]", metric, value, period)
	default:
		return ""
	}
}

// firstOccurrence locates the end of the first match of value in the
// content, trying an exact match before falling back to case-insensitive.
func firstOccurrence(content, lowered, value string) int {
	if value == "" {
		return -1
	}
	if idx := strings.Index(content, value); idx >= 0 {
		return idx + len(value)
	}
	if idx := strings.Index(lowered, strings.ToLower(value)); idx >= 0 {
		return idx + len(value)
	}
	return -1
}

// entityFooter renders the trailing entity section appended to enhanced
// content. One line per entity with its type and normalized value, then
// the derived relationships.
func entityFooter(entities []models.Entity, relationships []models.Relationship) string {
	if len(entities) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Entities\n")

	for _, entity := range entities {
		value := entity.Normalized
		if value == "" {
			value = entity.Value
		}
		sb.WriteString(fmt.Sprintf("\n- %s: %s", entity.Type, value))
		if detail := footerDetail(entity); detail != "" {
			sb.WriteString(" (" + detail + ")")
		}
	}

	if len(relationships) > 0 {
		sb.WriteString("\n\n### Relationships\n")
		for _, rel := range relationships {
			sb.WriteString(fmt.Sprintf("\n- %s %s %s", rel.FromValue, rel.Type, rel.ToValue))
		}
	}

	return sb.String()
}

// footerDetail summarizes the attributes worth surfacing per entity type.
func footerDetail(entity models.Entity) string {
	switch entity.Type {
	case models.EntityRating:
		parts := make([]string, 0, 3)
		for _, key := range []string{"firm", "action", "level"} {
			if v := entity.Attributes[key]; v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, " ")
	case models.EntityFinancialMetric, models.EntityPriceTarget:
		parts := make([]string, 0, 3)
		for _, key := range []string{"value", "symbol", "period"} {
			if v := entity.Attributes[key]; v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}
