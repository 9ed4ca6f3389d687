package backend

import (
	"fmt"
	"strings"
)

// UserRole is the permission role for a single user.
func UserRole(userID string) string {
	return "user:" + userID
}

func Read(role string) string {
	return fmt.Sprintf("read(%q)", role)
}

func Update(role string) string {
	return fmt.Sprintf("update(%q)", role)
}

func Delete(role string) string {
	return fmt.Sprintf("delete(%q)", role)
}

// OwnerPermissions grants read, update and delete to a single user.
func OwnerPermissions(userID string) []string {
	role := UserRole(userID)
	return []string{Read(role), Update(role), Delete(role)}
}

// Allows reports whether permissions grant action ("read", "update",
// "delete") to userID. Write grants update and delete.
func Allows(permissions []string, action, userID string) bool {
	role := fmt.Sprintf("%q", UserRole(userID))
	for _, permission := range permissions {
		permission = strings.ReplaceAll(strings.TrimSpace(permission), " ", "")
		name, arg, ok := strings.Cut(permission, "(")
		if !ok || strings.TrimSuffix(arg, ")") != role {
			continue
		}
		if name == action || (name == "write" && (action == "update" || action == "delete")) {
			return true
		}
	}
	return false
}
