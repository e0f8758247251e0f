// ABOUTME: Human readable description of a browser user agent
// ABOUTME: Stored on sessions so users can tell their logins apart

package auth

import "github.com/mileusna/useragent"

// DescribeUserAgent returns "<browser> on <platform>" for a User-Agent header.
func DescribeUserAgent(header string) string {
	ua := useragent.Parse(header)

	browser := ua.Name
	if browser == "" {
		browser = "Unknown"
	}
	platform := ua.OS
	if platform == "" {
		platform = "Unknown"
	}
	return browser + " on " + platform
}
