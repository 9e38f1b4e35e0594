package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

var dayNames = []string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}

// Describe renders a 5-field cron expression as human-readable
// Spanish. Expressions outside the recognized shapes come back
// unchanged.
func Describe(expr string) string {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return expr
	}
	minute, hour, dayMonth, month, dayWeek := parts[0], parts[1], parts[2], parts[3], parts[4]

	if minute == "0" && strings.HasPrefix(hour, "*/") && dayMonth == "*" && month == "*" && dayWeek == "*" {
		return fmt.Sprintf("Cada %s horas", hour[2:])
	}
	if strings.HasPrefix(minute, "*/") && hour == "*" && dayMonth == "*" && month == "*" && dayWeek == "*" {
		return fmt.Sprintf("Cada %s minutos", minute[2:])
	}
	if minute == "0" && hour == "*" && dayMonth == "*" && month == "*" && dayWeek == "*" {
		return "Cada hora"
	}

	m, mOK := atoi(minute)
	h, hOK := atoi(hour)

	if mOK && hOK && dayMonth == "*" && month == "*" && dayWeek == "*" {
		// Daily times render zero-padded, "a las 03:30".
		if m == 0 {
			return fmt.Sprintf("Cada día a las %d:00", h)
		}
		return fmt.Sprintf("Cada día a las %02d:%02d", h, m)
	}
	if mOK && hOK && dayMonth == "*" && month == "*" {
		if d, ok := atoi(dayWeek); ok && d >= 0 && d < len(dayNames) {
			return fmt.Sprintf("Cada %s a las %s", dayNames[d], clock(h, m))
		}
		if dayWeek == "1-5" {
			return fmt.Sprintf("Días laborales a las %s", clock(h, m))
		}
		if dayWeek == "0,6" || dayWeek == "6,0" {
			return fmt.Sprintf("Fines de semana a las %s", clock(h, m))
		}
	}
	if mOK && hOK && month == "*" && dayWeek == "*" {
		if d, ok := atoi(dayMonth); ok {
			return fmt.Sprintf("Día %d de cada mes a las %s", d, clock(h, m))
		}
	}

	return expr
}

func clock(h, m int) string {
	if m == 0 {
		return fmt.Sprintf("%d:00", h)
	}
	return fmt.Sprintf("%d:%02d", h, m)
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}
