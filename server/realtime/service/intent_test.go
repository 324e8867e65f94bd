package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"team_server/server/realtime/domain"
)

func TestIntentDetector(t *testing.T) {
	detector := NewIntentDetector()

	tests := []struct {
		name string
		text string
		want domain.ActionKind
	}{
		{
			name: "create task verb",
			text: "crea una tarea para revisar el informe",
			want: domain.ActionCreateTask,
		},
		{
			name: "create task colon",
			text: "Tarea: preparar la demo",
			want: domain.ActionCreateTask,
		},
		{
			name: "create task accented verb",
			text: "añade una tarea de limpiar el backlog",
			want: domain.ActionCreateTask,
		},
		{
			name: "idea",
			text: "tengo una idea: usar colores en el dashboard",
			want: domain.ActionCreateIdea,
		},
		{
			name: "idea propongo",
			text: "propongo que cambiemos el logo",
			want: domain.ActionCreateIdea,
		},
		{
			name: "objective",
			text: "crear un nuevo objetivo para el trimestre",
			want: domain.ActionCreateObjective,
		},
		{
			name: "event meeting",
			text: "agendar una reunión con el equipo mañana",
			want: domain.ActionCreateEvent,
		},
		{
			name: "reminder maps to event",
			text: "recuérdame enviar el correo mañana",
			want: domain.ActionCreateEvent,
		},
		{
			name: "deadline maps to task",
			text: "hay que entregar el reporte el viernes",
			want: domain.ActionCreateTask,
		},
		{
			name: "query tasks",
			text: "¿cómo van las tareas?",
			want: domain.ActionQueryTasks,
		},
		{
			name: "query group info",
			text: "dame la información del grupo",
			want: domain.ActionQueryGroupInfo,
		},
		{
			name: "take task",
			text: "me encargo de la tarea del login",
			want: domain.ActionTakeTask,
		},
		{
			name: "list free tasks",
			text: "¿hay tareas libres?",
			want: domain.ActionListFreeTasks,
		},
		{
			name: "plain chat",
			text: "buenos días a todos",
			want: domain.ActionNone,
		},
		{
			name: "empty",
			text: "   ",
			want: domain.ActionNone,
		},
		{
			name: "uppercase input is normalized",
			text: "CREA UNA TAREA DE REVISAR LOS LOGS",
			want: domain.ActionCreateTask,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := detector.Detect(tt.text)
			assert.Equal(t, tt.want, intent.Kind)
			assert.Equal(t, tt.text, intent.RawText)
		})
	}
}

// A message matching both the task rule and the take-task rule resolves
// to the earlier rule: order decides, not specificity.
func TestIntentDetectorFirstMatchWins(t *testing.T) {
	detector := NewIntentDetector()

	intent := detector.Detect("crea una tarea y luego me encargo de ella")
	assert.Equal(t, domain.ActionCreateTask, intent.Kind)
}
