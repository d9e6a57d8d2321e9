package gateway

import (
	"fmt"
	"strings"

	"github.com/fdezr/frontdesk/internal/booking"
	"github.com/fdezr/frontdesk/internal/conversation"
)

var fieldLabels = map[string]map[string]string{
	"en": {"name": "full name", "email": "email address", "phone": "phone number"},
	"es": {"name": "nombre completo", "email": "correo electrónico", "phone": "número de teléfono"},
}

// RenderSignal turns a state-machine outcome into a user-facing message in
// the given language. The voice path speaks these directly; chat uses them
// as the fallback when reply drafting fails.
func RenderSignal(out booking.Outcome, st *conversation.State, lang string) string {
	if lang != "es" {
		lang = "en"
	}
	switch out.Signal {
	case booking.SignalFieldsMissing:
		labels := make([]string, 0, len(out.Missing))
		for _, f := range out.Missing {
			if l := fieldLabels[lang][f]; l != "" {
				labels = append(labels, l)
			} else {
				labels = append(labels, f)
			}
		}
		if lang == "es" {
			return fmt.Sprintf("Para agendar su cita necesito su %s.", joinES(labels))
		}
		return fmt.Sprintf("To book your appointment I still need your %s.", joinEN(labels))

	case booking.SignalDaysOffered:
		var b strings.Builder
		if lang == "es" {
			b.WriteString("Estos son los días disponibles. ¿Cuál prefiere?\n")
		} else {
			b.WriteString("Here are the available days. Which one works for you?\n")
		}
		for i, d := range st.OfferedDays {
			label := d.DisplayEN
			if lang == "es" {
				label = d.DisplayES
			}
			fmt.Fprintf(&b, "%d. %s\n", i+1, label)
		}
		return strings.TrimRight(b.String(), "\n")

	case booking.SignalNoDays:
		if lang == "es" {
			return "Lo siento, no hay disponibilidad en los próximos días. Por favor intente más tarde."
		}
		return "I'm sorry, there is no availability in the coming days. Please try again later."

	case booking.SignalSlotsOffered:
		var b strings.Builder
		if lang == "es" {
			b.WriteString("Estos son los horarios disponibles. ¿Cuál prefiere?\n")
		} else {
			b.WriteString("Here are the available times. Which one would you like?\n")
		}
		for i, s := range st.OfferedSlots {
			fmt.Fprintf(&b, "%d. %s\n", i+1, s.Display)
		}
		return strings.TrimRight(b.String(), "\n")

	case booking.SignalNoSlotsForDay:
		if lang == "es" {
			return "Lo siento, ese día ya no tiene horarios disponibles. ¿Le gustaría elegir otro día?"
		}
		return "I'm sorry, that day no longer has open times. Would you like to pick another day?"

	case booking.SignalSelectionMismatch:
		if lang == "es" {
			return "Disculpe, no entendí su elección. Por favor indique el número de la opción que prefiere."
		}
		return "Sorry, I didn't catch your choice. Please tell me the number of the option you'd like."

	case booking.SignalConfirmed:
		if lang == "es" {
			return "¡Listo! Su cita quedó confirmada. Recibirá un correo con los detalles."
		}
		return "All set! Your appointment is confirmed. You'll receive an email with the details."

	case booking.SignalAlreadyConfirmed:
		if lang == "es" {
			return "Su cita ya está confirmada. Para agendar otra, por favor inicie una nueva conversación."
		}
		return "Your appointment is already confirmed. To book another one, please start a new conversation."

	case booking.SignalGatewayFailure:
		if out.Reason == booking.ReasonSlotTaken {
			if lang == "es" {
				return "Lo siento, ese horario acaba de ser reservado. ¿Le gustaría elegir otro?"
			}
			return "I'm sorry, that time was just booked. Would you like to pick another one?"
		}
		if lang == "es" {
			return "Lo siento, hubo un problema al procesar su solicitud. Por favor intente de nuevo."
		}
		return "I'm sorry, something went wrong while processing your request. Please try again."
	}
	if lang == "es" {
		return "¿En qué más puedo ayudarle?"
	}
	return "How else can I help you?"
}

func joinEN(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
}

func joinES(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " y " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " y " + items[len(items)-1]
	}
}
