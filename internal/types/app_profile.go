package types

// AppProfile is the advisory classification of the local target.
type AppProfile string

const (
	AppNextJS  AppProfile = "nextjs"
	AppReact   AppProfile = "react"
	AppSPA     AppProfile = "spa"
	AppSimple  AppProfile = "simple"
	AppUnknown AppProfile = "unknown"
)

func (p AppProfile) String() string {
	return string(p)
}

// Tip returns a performance hint for serving this kind of app through a
// tunnel, or "" when there is nothing to suggest.
func (p AppProfile) Tip() string {
	switch p {
	case AppNextJS:
		return "Next.js detected: use 'npm run build && npm start' for a much faster tunnel than the dev server"
	case AppSPA:
		return "Large single page app detected: enable gzip compression on your server to speed up remote loads"
	default:
		return ""
	}
}
