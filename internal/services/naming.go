package services

import "fmt"

// CollectionName returns the physical collection for a (tenant, model)
// pair.
func CollectionName(tenant, model string) string {
	return fmt.Sprintf("vector_store_schema_for_%s_%s", tenant, model)
}

// TenantRole returns the database role owning a tenant's collections.
func TenantRole(tenant string) string {
	return fmt.Sprintf("flouds_%s_role", tenant)
}

// TenantUser returns the database user bound to a tenant.
func TenantUser(tenant string) string {
	return fmt.Sprintf("%s_user", tenant)
}

// TenantDatabase returns the logical database name for a tenant.
func TenantDatabase(tenant string) string {
	return tenant
}
