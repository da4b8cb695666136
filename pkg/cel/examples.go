package cel

// RuleExamples are VIP rules an operator can drop into configuration.
var RuleExamples = map[string]string{
	"board_domain":      `sender.address.endsWith("@board.example.com")`,
	"named_executive":   `sender.name in ["Alex Morgan", "Jordan Lee"]`,
	"mail_from_legal":   `platform == "mail" && sender.address.startsWith("legal@")`,
	"subject_escalated": `subject.lowerAscii().contains("escalation")`,
	"chat_direct":       `platform == "chat" && !sender.address.endsWith("@bots.example.com")`,
	"weekend_mail":      `platform == "mail" && received_at.getDayOfWeek() in [0, 6]`,
}
