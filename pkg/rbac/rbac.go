package rbac

import "slices"

// 权限常量
const (
	// 普通操作权限
	PermissionCreateProject   = "project:create"
	PermissionUpdateProject   = "project:update"
	PermissionCreateMilestone = "milestone:create"

	// 敏感操作权限
	PermissionReadPledges  = "pledge:read"
	PermissionRelayPledge  = "pledge:relay"
	PermissionReplayOutbox = "outbox:replay"
	PermissionOverrideAny  = "project:override"
)

// 角色常量
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleUser: {
		PermissionCreateProject,
		PermissionUpdateProject,
		PermissionCreateMilestone,
		PermissionReadPledges,
	},
	RoleAdmin: {
		PermissionCreateProject,
		PermissionUpdateProject,
		PermissionCreateMilestone,
		PermissionReadPledges,
		PermissionRelayPledge,
		PermissionReplayOutbox,
		PermissionOverrideAny,
	},
}

// NormalizeRole 未知或空角色一律按 user 处理
func NormalizeRole(role string) string {
	if _, ok := rolePermissions[role]; ok {
		return role
	}
	return RoleUser
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	return slices.Contains(rolePermissions[NormalizeRole(role)], permission)
}

// IsAdmin 管理员可以绕过资源归属检查
func IsAdmin(role string) bool {
	return HasPermission(role, PermissionOverrideAny)
}

// CheckPermission 检查角色是否有指定权限（返回错误而不是布尔值，便于处理）
func CheckPermission(role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions: " + e.Permission
}
