package middleware

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shuttertag/shuttertag/pkg/contextkeys"
	"github.com/shuttertag/shuttertag/pkg/httputil"
	"github.com/shuttertag/shuttertag/pkg/tenants"
)

// TenantHeader names the header clients may use instead of a path
// variable to address a tenant.
const TenantHeader = "X-Tenant-ID"

// TenantResolver resolves the tenant a request addresses and stores it on
// the request context. The reference comes from the {tenant} path variable
// or, failing that, the X-Tenant-ID header, and may be the tenant's UUID,
// its identifier, or its key prefix.
type TenantResolver struct {
	store *tenants.Store
}

// NewTenantResolver creates the tenant resolution middleware.
func NewTenantResolver(store *tenants.Store) *TenantResolver {
	return &TenantResolver{store: store}
}

// Handler resolves the tenant reference on the request. A request that
// names a tenant that does not resolve gets a 404; a request with no
// tenant reference passes through unresolved and the downstream guards
// decide whether that is acceptable.
func (tr *TenantResolver) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := mux.Vars(r)["tenant"]
		if ref == "" {
			ref = r.Header.Get(TenantHeader)
		}
		if ref == "" {
			next.ServeHTTP(w, r)
			return
		}

		tenant, err := tr.store.Resolve(r.Context(), ref)
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
		if tenant == nil {
			httputil.WriteNotFound(w, "Tenant not found")
			return
		}

		next.ServeHTTP(w, r.WithContext(contextkeys.WithTenant(r.Context(), tenant)))
	})
}

// GetTenant extracts the resolved tenant from a request, or nil when the
// request did not address one.
func GetTenant(r *http.Request) *tenants.Tenant {
	v := r.Context().Value(contextkeys.TenantKey)
	if v == nil {
		return nil
	}
	tenant, ok := v.(*tenants.Tenant)
	if !ok {
		return nil
	}
	return tenant
}
