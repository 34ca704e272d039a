package engine

// CanManage indica se caller pode fechar ou resolver o mercado:
// apenas o criador ou o admin configurado (quando houver)
func CanManage(m Market, caller, admin string) bool {
	if caller == "" {
		return false
	}
	return caller == m.Creator || (admin != "" && caller == admin)
}
