package email

const (
	subjectNewLeadFmt       = "Novo lead: %s"
	subjectNewLeadUrgentFmt = "[URGENTE] Novo lead: %s"
	subjectUnnamedLead      = "sem nome"
)
