package core

// CanModify reports whether p may update or delete e: admins may modify any
// expense, everyone else only the ones they own.
func CanModify(p Principal, e Expense) bool {
	return p.Role == RoleAdmin || p.ID == e.OwnerID
}
