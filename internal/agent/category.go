package agent

import "strings"

// categoryRule maps keyword substrings to a requirement category. Rules are
// checked in order and the first hit wins, so authentication outranks data,
// data outranks interface, and so on. A text mentioning both "login" and
// "dashboard" lands in Autenticação, not Relatórios.
type categoryRule struct {
	category string
	keywords []string
}

var categoryRules = []categoryRule{
	{"Autenticação", []string{"login", "autentica", "senha", "cadastro de usuário", "cadastro de usuario", "permiss", "acesso", "oauth", "token"}},
	{"Dados", []string{"banco de dados", "armazenamento", "persist", "migração", "migracao", "backup", "dados"}},
	{"Interface", []string{"tela", "interface", "design", "layout", "responsiv", "página", "pagina", "formulário", "formulario"}},
	{"Integração", []string{"api", "integra", "webhook", "pagamento", "gateway", "externo"}},
	{"Relatórios", []string{"relatório", "relatorio", "dashboard", "gráfico", "grafico", "métrica", "metrica", "exporta"}},
}

const defaultCategory = "Geral"

// InferCategory classifies a requirement by keyword matching over its
// description or title.
func InferCategory(text string) string {
	t := strings.ToLower(text)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(t, kw) {
				return rule.category
			}
		}
	}
	return defaultCategory
}
