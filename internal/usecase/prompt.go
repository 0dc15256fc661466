package usecase

import (
	"strconv"
	"strings"

	"collector-agent/internal/domain"
)

// buildSystemPrompt joins the persona with the debtor block the model works
// from. Labels are Bulgarian to match the persona and the callee.
func buildSystemPrompt(persona string, p domain.DebtorProfile) string {
	return strings.TrimSpace(persona) + "\n\n" + clientInfo(p)
}

func clientInfo(p domain.DebtorProfile) string {
	return strings.Join([]string{
		"Информация за клиента:",
		"Име: " + p.FullName(),
		"Телефон: " + p.Phone,
		"Дължима сума: " + formatAmount(p.Amount) + " лв.",
		"Срок на кредита: " + p.CreditExpire,
		"Семейно положение: " + p.FamilyStatus,
		"Доход: " + formatAmount(p.Income) + " лв.",
		"ЕГН: " + p.EGN,
		"Адрес: " + p.Address,
		"Възраст: " + strconv.Itoa(p.Age),
		"Работа: " + p.Job,
	}, "\n")
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
