package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"team_server/server/realtime/domain"
)

func fixedExtractor() *ActionExtractor {
	return NewActionExtractor(fixedParser())
}

func TestExtractTask(t *testing.T) {
	extractor := fixedExtractor()

	t.Run("colon form with priority deadline and assignee", func(t *testing.T) {
		params := extractor.Extract(domain.ActionCreateTask, "crea una tarea urgente: revisar el informe para mañana asígnala a @maria")

		assert.Equal(t, "revisar el informe", params.Title)
		assert.Equal(t, domain.PriorityCritical, params.Priority)
		assert.Equal(t, "maria", params.AssignedTo)
		require.NotNil(t, params.Deadline)
		assert.Equal(t, date(2026, time.January, 6), *params.Deadline)
	})

	t.Run("verb form", func(t *testing.T) {
		params := extractor.Extract(domain.ActionCreateTask, "crear tarea de preparar la presentación")

		assert.Equal(t, "preparar la presentación", params.Title)
		assert.Equal(t, domain.PriorityMedium, params.Priority)
		assert.Empty(t, params.AssignedTo)
		assert.Nil(t, params.Deadline)
	})

	t.Run("para todos maps to sentinel", func(t *testing.T) {
		params := extractor.Extract(domain.ActionCreateTask, "tarea: actualizar dependencias para todos")

		assert.Equal(t, "actualizar dependencias", params.Title)
		assert.Equal(t, domain.AssignedToAll, params.AssignedTo)
	})

	t.Run("unextractable title falls back to truncated text", func(t *testing.T) {
		raw := "hay que entregar " + "un informe larguísimo sobre cada uno de los sistemas que operamos en producción"
		params := extractor.Extract(domain.ActionCreateTask, raw)

		assert.NotEmpty(t, params.Title)
		assert.LessOrEqual(t, len([]rune(params.Title)), maxTitleRunes+1)
	})
}

func TestExtractEvent(t *testing.T) {
	extractor := fixedExtractor()

	t.Run("meeting with date and time", func(t *testing.T) {
		params := extractor.Extract(domain.ActionCreateEvent, "agendar una reunión de planificación para mañana a las 15:00")

		assert.Equal(t, "planificación", params.Title)
		assert.Equal(t, "meeting", params.EventType)
		assert.Equal(t, "15:00", params.EventTime)
		require.NotNil(t, params.EventDate)
		assert.Equal(t, date(2026, time.January, 6), *params.EventDate)
	})

	t.Run("reminder without date", func(t *testing.T) {
		params := extractor.Extract(domain.ActionCreateEvent, "recuérdame que hay que renovar el certificado")

		assert.Equal(t, "reminder", params.EventType)
		assert.Nil(t, params.EventDate)
		assert.NotEmpty(t, params.Title)
	})
}

func TestExtractIdea(t *testing.T) {
	extractor := fixedExtractor()

	tests := []struct {
		name         string
		text         string
		wantTitle    string
		wantCategory string
	}{
		{
			name:         "explicit idea with design vocabulary",
			text:         "tengo una idea: rehacer el diseño de la pantalla de inicio",
			wantTitle:    "rehacer el diseño de la pantalla de inicio",
			wantCategory: "design",
		},
		{
			name:         "propongo with tech vocabulary",
			text:         "propongo que migremos el software de facturación",
			wantTitle:    "migremos el software de facturación",
			wantCategory: "technology",
		},
		{
			name:         "no category keywords",
			text:         "se me ocurre que cambiemos el horario",
			wantTitle:    "cambiemos el horario",
			wantCategory: "general",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := extractor.Extract(domain.ActionCreateIdea, tt.text)
			assert.Equal(t, tt.wantTitle, params.Title)
			assert.Equal(t, tt.wantCategory, params.Category)
		})
	}
}

func TestExtractTakeTask(t *testing.T) {
	extractor := fixedExtractor()

	params := extractor.Extract(domain.ActionTakeTask, "tomo la tarea de revisar el informe")
	assert.Equal(t, "revisar el informe", params.TaskQuery)

	params = extractor.Extract(domain.ActionTakeTask, "me encargo de eso")
	assert.Equal(t, "eso", params.TaskQuery)
}

func TestExtractPriority(t *testing.T) {
	tests := []struct {
		text string
		want domain.TaskPriority
	}{
		{text: "es urgente arreglar esto", want: domain.PriorityCritical},
		{text: "algo crítico en producción", want: domain.PriorityCritical},
		{text: "tarea importante para el lunes", want: domain.PriorityHigh},
		{text: "prioridad alta por favor", want: domain.PriorityHigh},
		{text: "sin prisa, cuando puedas", want: domain.PriorityLow},
		{text: "prioridad baja", want: domain.PriorityLow},
		{text: "una tarea normal", want: domain.PriorityMedium},
		{text: "revisar el informe", want: domain.PriorityMedium},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractPriority(tt.text), "text=%q", tt.text)
	}
}

func TestExtractAssignee(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{text: "asígnala a juan", want: "juan"},
		{text: "para @lucia", want: "lucia"},
		{text: "para todos los del equipo", want: domain.AssignedToAll},
		{text: "revisar el informe", want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractAssignee(tt.text), "text=%q", tt.text)
	}
}
