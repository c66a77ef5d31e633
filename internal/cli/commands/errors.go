package commands

import (
	"fmt"
	"io"

	"github.com/routefs/routefs/pkg/errors"
)

// Error output formats
const (
	ErrorFormatText = "text"
	ErrorFormatJSON = "json"
)

// ReportError writes err for the user. RouteFS errors get a recommendation,
// a full diagnostic with --verbose, or a JSON document with --error-format json.
func ReportError(w io.Writer, err error) {
	routeErr, ok := errors.AsRouteFSError(err)
	if !ok {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}

	switch {
	case errorFormat == ErrorFormatJSON:
		fmt.Fprintln(w, routeErr.JSON())
	case verbose:
		fmt.Fprintln(w, routeErr.DetailedDiagnostic())
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
		if routeErr.UserFacing {
			fmt.Fprintf(w, "Hint: %s\n", routeErr.GetRecommendation())
		}
	}
}
