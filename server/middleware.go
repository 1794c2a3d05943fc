// middleware.go - Host-Pruefung fuer lokal gebundene Server
package server

import (
	"net"
	"net/http"
	"net/netip"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

var localSuffixes = []string{".localhost", ".local", ".internal"}

// isLocalIP meldet, ob ip einem Interface dieser Maschine gehoert
func isLocalIP(ip netip.Addr) bool {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, a := range addrs {
		prefix, err := netip.ParsePrefix(a.String())
		if err == nil && prefix.Addr().Unmap() == ip.Unmap() {
			return true
		}
	}
	return false
}

// allowedHost meldet, ob ein Hostname auf diese Maschine zeigt
func allowedHost(host string) bool {
	host = strings.ToLower(host)
	if host == "" || host == "localhost" {
		return true
	}
	if hostname, err := os.Hostname(); err == nil && host == strings.ToLower(hostname) {
		return true
	}
	for _, suffix := range localSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// localHost prueft den Host-Header einer Anfrage; IPs zaehlen als lokal,
// wenn sie loopback, privat, unspezifiziert oder ein eigenes Interface sind
func localHost(header string) (ok bool, named bool) {
	host, _, err := net.SplitHostPort(header)
	if err != nil {
		host = header
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || isLocalIP(ip), false
	}
	return allowedHost(host), true
}

// allowedHostsMiddleware weist fremde Host-Header ab, solange der Server nur
// auf Loopback lauscht (DNS-Rebinding)
func allowedHostsMiddleware(addr net.Addr) gin.HandlerFunc {
	loopback := false
	if addr != nil {
		if ap, err := netip.ParseAddrPort(addr.String()); err == nil {
			loopback = ap.Addr().IsLoopback()
		}
	}

	return func(c *gin.Context) {
		if !loopback {
			c.Next()
			return
		}

		ok, named := localHost(c.Request.Host)
		switch {
		case !ok:
			c.AbortWithStatus(http.StatusForbidden)
		case named && c.Request.Method == http.MethodOptions:
			c.AbortWithStatus(http.StatusNoContent)
		default:
			c.Next()
		}
	}
}
