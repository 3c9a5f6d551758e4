// Package static implements the static file responder.
//
// A [Root] maps a URL prefix (normally "/static") onto a directory populated
// by the deployment process. Lookups are split from serving so the router can
// treat a miss as "not applicable" and fall through to the upstream:
//
//	file, err := root.Resolve(r.URL.Path)
//	switch {
//	case errors.Is(err, static.ErrNotFound):
//	    // try the next rule
//	case err != nil:
//	    // static.StatusFor(err) is 403 for permission failures
//	default:
//	    root.Serve(w, r, file)
//	}
//
// A resolved path never leaves the root: ".." segments and symlinks that
// point outside it are reported as ErrNotFound.
package static
