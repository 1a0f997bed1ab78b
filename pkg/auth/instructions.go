package auth

import (
	"fmt"
	"io"
	"strings"
)

// WriteSessionGuide prints where to find a site's session cookie
func WriteSessionGuide(w io.Writer, site string) {
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Session cookie for %s\n", site)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "1. Log in to the site in your browser.")
	fmt.Fprintln(w, "2. Open Developer Tools (F12) and go to Storage / Application > Cookies.")
	fmt.Fprintln(w, "3. Copy the value of the cookie named \"session\".")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Store it with:  mediadl auth set %s\n", site)
	fmt.Fprintf(w, "or export %s for a single run.\n", EnvVar(site))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Never share this value; it grants full access to your account.")
}
