package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}
type countryContextKey struct{}

var (
	LocaleKey  = localeContextKey{}
	CountryKey = countryContextKey{}
)

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

var supportedLocales = []language.Tag{
	language.English,
	language.Indonesian,
	language.Spanish,
}

var localeMatcher = language.NewMatcher(supportedLocales)

// I18N resolves the request locale from the X-Locale header, then
// Accept-Language, then the caller's country, and stores locale and country
// on the context for response localization.
func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := ResolveCountry(r, lookup)
			locale := detectLocale(r, defaultLocale, country)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			if country != "" {
				ctx = context.WithValue(ctx, CountryKey, strings.ToUpper(country))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func detectLocale(r *http.Request, fallback string, country string) string {
	var desired []language.Tag
	for _, hdr := range []string{r.Header.Get("X-Locale"), r.Header.Get("Accept-Language")} {
		if hdr == "" {
			continue
		}
		if tags, _, err := language.ParseAcceptLanguage(hdr); err == nil {
			desired = append(desired, tags...)
		}
	}
	if len(desired) > 0 {
		if tag, _, conf := localeMatcher.Match(desired...); conf > language.No {
			base, _ := tag.Base()
			return base.String()
		}
	}
	if strings.EqualFold(country, "ID") {
		return "id"
	}
	if country != "" {
		return "en"
	}
	if fallback != "" {
		return fallback
	}
	return "en"
}

// ResolveCountry finds the caller's country code via the lookup, preferring
// forwarded addresses over the socket peer.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	if lookup == nil {
		return ""
	}
	for _, ip := range candidateIPs(r) {
		code, err := lookup(ip)
		if err == nil && code != "" {
			return code
		}
	}
	return ""
}

func candidateIPs(r *http.Request) []string {
	var ips []string
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if net.ParseIP(ip) != nil {
				ips = append(ips, ip)
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && net.ParseIP(host) != nil {
		ips = append(ips, host)
	} else if net.ParseIP(r.RemoteAddr) != nil {
		ips = append(ips, r.RemoteAddr)
	}
	return ips
}

// LocaleFromContext returns the resolved locale or "en".
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok && v != "" {
		return v
	}
	return "en"
}
