package service

import (
	"regexp"
	"strings"

	"team_server/server/realtime/domain"
)

// ActionExtractor turns free text into the structured parameter bundle of
// a detected action kind. Extraction is layered: the most specific
// pattern is attempted first and a generic fallback always applies, so
// every kind yields usable parameters for any input.
type ActionExtractor struct {
	dates *DateParser
}

func NewActionExtractor(dates *DateParser) *ActionExtractor {
	return &ActionExtractor{dates: dates}
}

const maxTitleRunes = 60

func (e *ActionExtractor) Extract(kind domain.ActionKind, text string) domain.ActionParams {
	switch kind {
	case domain.ActionCreateTask:
		return e.extractTask(text)
	case domain.ActionCreateObjective:
		return e.extractObjective(text)
	case domain.ActionCreateEvent:
		return e.extractEvent(text)
	case domain.ActionCreateIdea:
		return e.extractIdea(text)
	case domain.ActionTakeTask:
		return e.extractTakeTask(text)
	default:
		return domain.ActionParams{Priority: domain.PriorityMedium}
	}
}

var (
	taskColonRe = regexp.MustCompile(`(?i)tarea[^:]*:\s*(.+)`)
	taskVerbRe  = regexp.MustCompile(`(?i)(?:crea(?:r)?|nueva|a[ñn]ad[ei](?:r)?|agrega(?:r)?|haz)\s+(?:una\s+)?(?:nueva\s+)?tarea\s+(?:de\s+|para\s+|sobre\s+)?(.+)`)

	objectiveColonRe = regexp.MustCompile(`(?i)objetivo[^:]*:\s*(.+)`)
	objectiveVerbRe  = regexp.MustCompile(`(?i)(?:crea(?:r)?|nuevo|a[ñn]ad[ei](?:r)?|agrega(?:r)?|defin[ei](?:r)?)\s+(?:un\s+)?(?:nuevo\s+)?objetivo\s+(?:de\s+|para\s+|sobre\s+)?(.+)`)

	eventColonRe   = regexp.MustCompile(`(?i)evento[^:]*:\s*(.+)`)
	eventSubjectRe = regexp.MustCompile(`(?i)(?:reuni[oó]n|evento|sesi[oó]n|llamada)\s+(?:de|sobre|para)\s+(.+)`)
	eventVerbRe    = regexp.MustCompile(`(?i)(?:agenda(?:r)?|programa(?:r)?|organiza(?:r)?|convoca(?:r)?)\s+(?:una?\s+)?(.+)`)
	reminderRe     = regexp.MustCompile(`(?i)recu[eé]rda(?:me)?\s+(?:que\s+)?(.+)`)

	ideaColonRe = regexp.MustCompile(`(?i)idea[^:]*:\s*(.+)`)
	ideaHaveRe  = regexp.MustCompile(`(?i)tengo\s+una\s+idea\s*[:,]?\s*(.+)`)
	ideaOccurRe = regexp.MustCompile(`(?i)se\s+me\s+ocurr[eió]+\s+(?:que\s+)?(.+)`)
	ideaPropRe  = regexp.MustCompile(`(?i)propongo\s+(?:que\s+)?(.+)`)

	takeTaskRe   = regexp.MustCompile(`(?i)(?:tomo|tomar[eé]?|agarro|coger[eé]?)\s+(?:la\s+|una\s+|esa\s+)?tarea\s+(?:de\s+)?(.+)`)
	takeChargeRe = regexp.MustCompile(`(?i)me\s+encargo\s+de\s+(?:la\s+tarea\s+(?:de\s+)?)?(.+)`)

	assignAllRe  = regexp.MustCompile(`(?i)(?:para|a)\s+todos\b`)
	assignVerbRe = regexp.MustCompile(`(?i)as[ií]gna(?:r|da|do|le|se)?(?:la|lo)?\s+(?:a\s+)?@?(\w+)`)
	assignAtRe   = regexp.MustCompile(`(?i)(?:para|a)\s+@(\w+)`)

	// Trailing phrases stripped from extracted titles.
	titleCutRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\s+as[ií]gna(?:r|da|do|le|se)?(?:la|lo)?\s+.*$`),
		regexp.MustCompile(`(?i)\s+(?:para|a)\s+@\w+.*$`),
		regexp.MustCompile(`(?i)\s+(?:para|a)\s+todos\b.*$`),
		regexp.MustCompile(`(?i)\s+(?:para|antes\s+de[l]?)\s+(?:el\s+|la\s+)?(?:hoy|ma[ñn]ana|pasado\s+ma[ñn]ana|lunes|martes|mi[eé]rcoles|jueves|viernes|s[aá]bado|domingo|pr[oó]xim[ao].*|\d.*)$`),
		regexp.MustCompile(`(?i)\s+a\s+las?\s+\d{1,2}(?::\d{2})?.*$`),
		regexp.MustCompile(`(?i)\s+(?:el\s+)?\d{1,2}\s+de\s+\w+(?:\s+de[l]?\s+\d{4})?.*$`),
		regexp.MustCompile(`(?i)\s+con\s+fecha\s+l[ií]mite.*$`),
	}

	leadingPriorityRe = regexp.MustCompile(`(?i)^(?:urgente|importante|cr[ií]tic[ao]|prioritari[ao]|normal)\s*[:,]?\s*`)

	priorityCriticalRe = regexp.MustCompile(`(?i)urgente|cr[ií]tic[ao]|inmediat[ao]|ya\s+mismo`)
	priorityHighRe     = regexp.MustCompile(`(?i)\balta\b|importante|prioritari[ao]`)
	priorityLowRe      = regexp.MustCompile(`(?i)\bbaja\b|sin\s+prisa|cuando\s+puedas`)
	priorityMediumRe   = regexp.MustCompile(`(?i)\bmedia\b|\bnormal\b`)
)

func (e *ActionExtractor) extractTask(text string) domain.ActionParams {
	params := domain.ActionParams{
		Title:       firstMatch(text, taskColonRe, taskVerbRe),
		Description: strings.TrimSpace(text),
		Priority:    ExtractPriority(text),
		AssignedTo:  ExtractAssignee(text),
	}
	if deadline, ok := e.dates.ParseDate(text); ok {
		params.Deadline = &deadline
	}
	params.Title = finishTitle(params.Title, text)
	return params
}

func (e *ActionExtractor) extractObjective(text string) domain.ActionParams {
	params := domain.ActionParams{
		Title:       firstMatch(text, objectiveColonRe, objectiveVerbRe),
		Description: strings.TrimSpace(text),
		Priority:    ExtractPriority(text),
	}
	if deadline, ok := e.dates.ParseDate(text); ok {
		params.Deadline = &deadline
	}
	params.Title = finishTitle(params.Title, text)
	return params
}

func (e *ActionExtractor) extractEvent(text string) domain.ActionParams {
	params := domain.ActionParams{
		Title:       firstMatch(text, eventColonRe, eventSubjectRe, reminderRe, eventVerbRe),
		Description: strings.TrimSpace(text),
		Priority:    ExtractPriority(text),
		EventType:   classifyEventType(text),
	}
	if date, ok := e.dates.ParseDate(text); ok {
		params.EventDate = &date
	}
	if clock, ok := e.dates.ParseTime(text); ok {
		params.EventTime = clock
	}
	params.Title = finishTitle(params.Title, text)
	return params
}

func (e *ActionExtractor) extractIdea(text string) domain.ActionParams {
	params := domain.ActionParams{
		Title:       firstMatch(text, ideaColonRe, ideaHaveRe, ideaOccurRe, ideaPropRe),
		Description: strings.TrimSpace(text),
		Priority:    ExtractPriority(text),
		Category:    classifyIdeaCategory(text),
	}
	params.Title = finishTitle(params.Title, text)
	return params
}

func (e *ActionExtractor) extractTakeTask(text string) domain.ActionParams {
	fragment := firstMatch(text, takeTaskRe, takeChargeRe)
	return domain.ActionParams{
		TaskQuery: strings.TrimSpace(cutTitle(fragment)),
		Priority:  domain.PriorityMedium,
	}
}

// ExtractPriority maps Spanish priority vocabulary onto the ordered enum;
// the most severe keyword present wins, defaulting to medium.
func ExtractPriority(text string) domain.TaskPriority {
	switch {
	case priorityCriticalRe.MatchString(text):
		return domain.PriorityCritical
	case priorityHighRe.MatchString(text):
		return domain.PriorityHigh
	case priorityLowRe.MatchString(text):
		return domain.PriorityLow
	case priorityMediumRe.MatchString(text):
		return domain.PriorityMedium
	default:
		return domain.PriorityMedium
	}
}

// ExtractAssignee resolves an explicit assignment mention. "para todos"
// and "a todos" map to the AssignedToAll sentinel.
func ExtractAssignee(text string) string {
	if assignAllRe.MatchString(text) {
		return domain.AssignedToAll
	}
	if m := assignVerbRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := assignAtRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func classifyEventType(text string) string {
	lowered := strings.ToLower(text)
	switch {
	case strings.Contains(lowered, "reuni"):
		return "meeting"
	case strings.Contains(lowered, "record") || strings.Contains(lowered, "recuérda") || strings.Contains(lowered, "recuerda"):
		return "reminder"
	case strings.Contains(lowered, "entrega") || strings.Contains(lowered, "deadline"):
		return "deadline"
	default:
		return "event"
	}
}

func classifyIdeaCategory(text string) string {
	lowered := strings.ToLower(text)
	switch {
	case strings.Contains(lowered, "diseñ") || strings.Contains(lowered, "disen"):
		return "design"
	case strings.Contains(lowered, "marketing") || strings.Contains(lowered, "publicidad"):
		return "marketing"
	case strings.Contains(lowered, "tecnolog") || strings.Contains(lowered, "técnic") || strings.Contains(lowered, "tecnic") || strings.Contains(lowered, "software"):
		return "technology"
	case strings.Contains(lowered, "producto"):
		return "product"
	case strings.Contains(lowered, "negocio") || strings.Contains(lowered, "ventas"):
		return "business"
	default:
		return "general"
	}
}

func firstMatch(text string, patterns ...*regexp.Regexp) string {
	for _, pattern := range patterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			candidate := strings.TrimSpace(m[len(m)-1])
			if candidate != "" {
				return candidate
			}
		}
	}
	return ""
}

// finishTitle strips trailing assignment/date phrases and falls back to a
// truncated copy of the raw message when nothing was extracted.
func finishTitle(title, raw string) string {
	title = strings.TrimSpace(cutTitle(title))
	title = leadingPriorityRe.ReplaceAllString(title, "")
	title = strings.Trim(title, `"“”`)
	if title == "" {
		title = truncateRunes(strings.TrimSpace(raw), maxTitleRunes)
	}
	return title
}

// cutTitle iterates until stable: stripping one trailing phrase can
// expose another ("... para mañana a las 15:00").
func cutTitle(title string) string {
	for {
		before := title
		for _, re := range titleCutRes {
			title = re.ReplaceAllString(title, "")
		}
		if title == before {
			return title
		}
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
