package authz

import (
	"github.com/iota-uz/autoassign/pkg/serrors"
)

const codeForbidden = "AUTHZ_FORBIDDEN"

// ErrForbidden matches every denial returned by Service.Authorize via errors.Is.
var ErrForbidden = serrors.NewError(codeForbidden, "permission denied", "Authorization.PermissionDenied")

func denied(req Request) error {
	return serrors.NewError(codeForbidden, "permission denied: "+req.Action+" on "+req.Object, "Authorization.PermissionDenied").
		WithTemplateData(map[string]string{
			"subject": req.Subject,
			"domain":  req.Domain,
			"object":  req.Object,
			"action":  req.Action,
		})
}
