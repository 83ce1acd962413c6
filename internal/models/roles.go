package models

import "sort"

// Role is the coarse identity tier carried by an account and its tokens.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Roles lists every assignable role, lowest tier first.
var Roles = []Role{RoleUser, RoleAdmin, RoleSuperAdmin}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// Permission is a fine-grained capability string of the form "resource:action-scope".
type Permission string

const (
	// Account self-service
	PermUserReadOwnProfile   Permission = "user:read-own-profile"
	PermUserUpdateOwnProfile Permission = "user:update-own-profile"
	PermUserDeleteOwnAccount Permission = "user:delete-own-account"

	// Budget
	PermBudgetCreate    Permission = "budget:create"
	PermBudgetReadOwn   Permission = "budget:read-own"
	PermBudgetUpdateOwn Permission = "budget:update-own"
	PermBudgetDeleteOwn Permission = "budget:delete-own"
	PermBudgetReadAll   Permission = "budget:read-all"
	PermBudgetUpdateAll Permission = "budget:update-all"
	PermBudgetDeleteAll Permission = "budget:delete-all"

	// Transaction
	PermTransactionCreate    Permission = "transaction:create"
	PermTransactionReadOwn   Permission = "transaction:read-own"
	PermTransactionUpdateOwn Permission = "transaction:update-own"
	PermTransactionDeleteOwn Permission = "transaction:delete-own"
	PermTransactionReadAll   Permission = "transaction:read-all"
	PermTransactionUpdateAll Permission = "transaction:update-all"
	PermTransactionDeleteAll Permission = "transaction:delete-all"

	// Category
	PermCategoryCreateOwn     Permission = "category:create-own"
	PermCategoryReadOwn       Permission = "category:read-own"
	PermCategoryUpdateOwn     Permission = "category:update-own"
	PermCategoryDeleteOwn     Permission = "category:delete-own"
	PermCategoryCreateDefault Permission = "category:create-default"
	PermCategoryReadAll       Permission = "category:read-all"
	PermCategoryUpdateAll     Permission = "category:update-all"
	PermCategoryDeleteAll     Permission = "category:delete-all"

	// Report
	PermReportViewOwn   Permission = "report:view-own"
	PermReportExportOwn Permission = "report:export-own"
	PermReportViewAll   Permission = "report:view-all"
	PermReportExportAll Permission = "report:export-all"

	// User administration
	PermUserCreate    Permission = "user:create"
	PermUserReadAll   Permission = "user:read-all"
	PermUserUpdateAll Permission = "user:update-all"
	PermUserDeleteAll Permission = "user:delete-all"
	PermUserBlock     Permission = "user:block"
	PermUserUnblock   Permission = "user:unblock"

	// System
	PermSystemViewLogs       Permission = "system:view-logs"
	PermSystemUpdateSettings Permission = "system:update-settings"
	PermSystemManageRoles    Permission = "system:manage-roles"
)

// PermissionInfo describes a permission in the capability table.
type PermissionInfo struct {
	Name        Permission `json:"name"`
	Family      string     `json:"family"`
	Description string     `json:"description"`
}

// capabilities is the permission -> description table. It is only used to
// describe permissions; role ordering comes from rolePermissions.
var capabilities = []PermissionInfo{
	{PermUserReadOwnProfile, "account", "Read own profile"},
	{PermUserUpdateOwnProfile, "account", "Update own profile"},
	{PermUserDeleteOwnAccount, "account", "Delete own account"},

	{PermBudgetCreate, "budget", "Create budgets"},
	{PermBudgetReadOwn, "budget", "Read own budgets"},
	{PermBudgetUpdateOwn, "budget", "Update own budgets"},
	{PermBudgetDeleteOwn, "budget", "Delete own budgets"},
	{PermBudgetReadAll, "budget", "Read every account's budgets"},
	{PermBudgetUpdateAll, "budget", "Update every account's budgets"},
	{PermBudgetDeleteAll, "budget", "Delete every account's budgets"},

	{PermTransactionCreate, "transaction", "Create transactions"},
	{PermTransactionReadOwn, "transaction", "Read own transactions"},
	{PermTransactionUpdateOwn, "transaction", "Update own transactions"},
	{PermTransactionDeleteOwn, "transaction", "Delete own transactions"},
	{PermTransactionReadAll, "transaction", "Read every account's transactions"},
	{PermTransactionUpdateAll, "transaction", "Update every account's transactions"},
	{PermTransactionDeleteAll, "transaction", "Delete every account's transactions"},

	{PermCategoryCreateOwn, "category", "Create own categories"},
	{PermCategoryReadOwn, "category", "Read own categories"},
	{PermCategoryUpdateOwn, "category", "Update own categories"},
	{PermCategoryDeleteOwn, "category", "Delete own categories"},
	{PermCategoryCreateDefault, "category", "Create default categories"},
	{PermCategoryReadAll, "category", "Read every account's categories"},
	{PermCategoryUpdateAll, "category", "Update every account's categories"},
	{PermCategoryDeleteAll, "category", "Delete every account's categories"},

	{PermReportViewOwn, "report", "View own reports"},
	{PermReportExportOwn, "report", "Export own reports"},
	{PermReportViewAll, "report", "View reports across accounts"},
	{PermReportExportAll, "report", "Export reports across accounts"},

	{PermUserCreate, "user-admin", "Create accounts"},
	{PermUserReadAll, "user-admin", "List and read all accounts"},
	{PermUserUpdateAll, "user-admin", "Update any account"},
	{PermUserDeleteAll, "user-admin", "Delete any account"},
	{PermUserBlock, "user-admin", "Lock (deactivate) accounts"},
	{PermUserUnblock, "user-admin", "Unlock (reactivate) accounts"},

	{PermSystemViewLogs, "system", "View system logs"},
	{PermSystemUpdateSettings, "system", "Update system settings"},
	{PermSystemManageRoles, "system", "Change account roles"},
}

var userPermissions = []Permission{
	PermUserReadOwnProfile,
	PermUserUpdateOwnProfile,
	PermUserDeleteOwnAccount,
	PermBudgetCreate,
	PermBudgetReadOwn,
	PermBudgetUpdateOwn,
	PermBudgetDeleteOwn,
	PermTransactionCreate,
	PermTransactionReadOwn,
	PermTransactionUpdateOwn,
	PermTransactionDeleteOwn,
	PermCategoryCreateOwn,
	PermCategoryReadOwn,
	PermCategoryUpdateOwn,
	PermCategoryDeleteOwn,
	PermReportViewOwn,
	PermReportExportOwn,
}

var adminExtraPermissions = []Permission{
	PermUserReadAll,
	PermUserBlock,
	PermUserUnblock,
	PermCategoryCreateDefault,
	PermCategoryReadAll,
	PermCategoryUpdateAll,
	PermReportViewAll,
	PermReportExportAll,
	PermSystemViewLogs,
}

// rolePermissions is the single source of truth for authorisation. It is
// built once at init and never mutated afterwards.
var rolePermissions = buildRolePermissions()

func buildRolePermissions() map[Role]map[Permission]struct{} {
	user := setOf(userPermissions)

	admin := setOf(userPermissions)
	for _, p := range adminExtraPermissions {
		admin[p] = struct{}{}
	}

	super := make(map[Permission]struct{}, len(capabilities))
	for _, c := range capabilities {
		super[c.Name] = struct{}{}
	}

	return map[Role]map[Permission]struct{}{
		RoleUser:       user,
		RoleAdmin:      admin,
		RoleSuperAdmin: super,
	}
}

func setOf(perms []Permission) map[Permission]struct{} {
	out := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		out[p] = struct{}{}
	}
	return out
}

// HasPermission reports whether role grants perm. Unknown roles grant nothing.
func (r Role) HasPermission(perm Permission) bool {
	_, ok := rolePermissions[r][perm]
	return ok
}

// Permissions returns a sorted copy of the permissions granted to r.
func (r Role) Permissions() []Permission {
	set := rolePermissions[r]
	out := make([]Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Satisfies reports whether r meets a requirement for role required. The
// ordering is permission-set inclusion, so SUPER_ADMIN satisfies everything
// and USER satisfies only USER.
func (r Role) Satisfies(required Role) bool {
	have, ok := rolePermissions[r]
	if !ok {
		return false
	}
	want, ok := rolePermissions[required]
	if !ok {
		return false
	}
	if len(have) < len(want) {
		return false
	}
	for p := range want {
		if _, ok := have[p]; !ok {
			return false
		}
	}
	return true
}

// Capabilities returns a copy of the capability table.
func Capabilities() []PermissionInfo {
	out := make([]PermissionInfo, len(capabilities))
	copy(out, capabilities)
	return out
}
