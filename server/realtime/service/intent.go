package service

import (
	"regexp"
	"strings"

	"team_server/server/realtime/domain"
)

type intentRule struct {
	name    string
	pattern *regexp.Regexp
	kind    domain.ActionKind
}

// IntentDetector classifies free chat text into an action kind by testing
// a fixed, ordered rule list against the lower-cased text. The first rule
// whose pattern matches wins, so detection stays deterministic even when
// a message plausibly matches several rules. Rule order is part of the
// contract; do not reorder.
type IntentDetector struct {
	rules []intentRule
}

func NewIntentDetector() *IntentDetector {
	return &IntentDetector{rules: []intentRule{
		{
			name:    "task",
			pattern: regexp.MustCompile(`(crea(r)?|nueva|a[ñn]ad[ei](r)?|agrega(r)?|haz)\s+(una\s+)?(nueva\s+)?tarea|^tarea\s*:`),
			kind:    domain.ActionCreateTask,
		},
		{
			name:    "idea",
			pattern: regexp.MustCompile(`tengo\s+una\s+idea|se\s+me\s+ocurr|propongo\s+|^idea\s*:|(crea(r)?|nueva|a[ñn]ad[ei](r)?|agrega(r)?)\s+(una\s+)?idea`),
			kind:    domain.ActionCreateIdea,
		},
		{
			name:    "objective",
			pattern: regexp.MustCompile(`(crea(r)?|nuevo|a[ñn]ad[ei](r)?|agrega(r)?|defin[ei](r)?)\s+(un\s+)?(nuevo\s+)?objetivo|^objetivo\s*:`),
			kind:    domain.ActionCreateObjective,
		},
		{
			name:    "event",
			pattern: regexp.MustCompile(`(agenda(r)?|programa(r)?|organiza(r)?|convoca(r)?)\s+(una?\s+)?(reuni[oó]n|evento|llamada|sesi[oó]n)|(crea(r)?|nuevo)\s+(un\s+)?evento|^evento\s*:`),
			kind:    domain.ActionCreateEvent,
		},
		{
			name:    "reminder",
			pattern: regexp.MustCompile(`recu[eé]rda(me)?\s|recordatorio|no\s+olvide[sn]?\s`),
			kind:    domain.ActionCreateEvent,
		},
		{
			name:    "deadline",
			pattern: regexp.MustCompile(`fecha\s+l[ií]mite|deadline|hay\s+que\s+entregar`),
			kind:    domain.ActionCreateTask,
		},
		{
			name:    "query-tasks",
			pattern: regexp.MustCompile(`(qu[eé]|cu[aá]nta?s|cu[aá]les)\s+tareas|c[oó]mo\s+van\s+las\s+tareas|estado\s+de\s+(las\s+)?tareas|resumen\s+de\s+tareas`),
			kind:    domain.ActionQueryTasks,
		},
		{
			name:    "query-group-info",
			pattern: regexp.MustCompile(`info(rmaci[oó]n)?\s+del?\s+grupo|qui[eé]n(es)?\s+est[aá]n?\s+en\s+el\s+grupo|resumen\s+del\s+grupo|datos\s+del\s+grupo`),
			kind:    domain.ActionQueryGroupInfo,
		},
		{
			name:    "take-task",
			pattern: regexp.MustCompile(`(tomo|tomar[eé]?|agarro|coger[eé]?)\s+(la\s+|una\s+|esa\s+)?tarea|me\s+encargo\s+de|me\s+asigno\s+|asignarme\s+`),
			kind:    domain.ActionTakeTask,
		},
		{
			name:    "list-free-tasks",
			pattern: regexp.MustCompile(`tareas\s+(libres|disponibles|sin\s+asignar)|qu[eé]\s+puedo\s+hacer`),
			kind:    domain.ActionListFreeTasks,
		},
	}}
}

func (d *IntentDetector) Detect(text string) domain.ActionIntent {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return domain.ActionIntent{Kind: domain.ActionNone, RawText: text}
	}
	for _, rule := range d.rules {
		if rule.pattern.MatchString(lowered) {
			return domain.ActionIntent{Kind: rule.kind, RawText: text}
		}
	}
	return domain.ActionIntent{Kind: domain.ActionNone, RawText: text}
}
