package auth

import (
	"fmt"
	"strings"
)

// ShowCookieExtractionGuide displays step-by-step instructions for extracting cookies
func ShowCookieExtractionGuide() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("GUMROAD COOKIE EXTRACTION GUIDE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()

	fmt.Println("This tool needs your Gumroad session cookies to access your library.")
	fmt.Println("Follow these steps to extract them from your browser:")
	fmt.Println()

	fmt.Println("STEP 1: Open your Gumroad library")
	fmt.Println("   - Go to https://app.gumroad.com/library")
	fmt.Println("   - Log in with your account")
	fmt.Println("   - Make sure you can see your purchases")
	fmt.Println()

	fmt.Println("STEP 2: Open Developer Tools")
	fmt.Println("   - Chrome/Edge/Brave: Press F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)")
	fmt.Println("   - Firefox: Press F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)")
	fmt.Println("   - Safari: Enable Developer menu in Preferences, then Cmd+Option+I")
	fmt.Println()

	fmt.Println("STEP 3: Find your cookies")
	fmt.Println("   1. Go to the 'Application' tab (Chrome) or 'Storage' tab (Firefox)")
	fmt.Println("   2. In the left sidebar, expand 'Cookies'")
	fmt.Println("   3. Click on 'https://app.gumroad.com'")
	fmt.Println("   4. Copy the values of these two cookies:")
	fmt.Println()
	fmt.Println("      _gumroad_app_session   (long string, often ends with =)")
	fmt.Println("      _gumroad_guid          (shorter identifier)")
	fmt.Println()

	fmt.Println("STEP 4: Copy your browser's user agent")
	fmt.Println("   - Gumroad checks that the session is used from the same browser,")
	fmt.Println("     so the user agent must match exactly")
	fmt.Println("   - In the DevTools console, run: navigator.userAgent")
	fmt.Println()

	fmt.Println("TIPS:")
	fmt.Println("   - Copy the ENTIRE value (everything after the = sign)")
	fmt.Println("   - Don't include quotes or semicolons")
	fmt.Println("   - These cookies expire when you log out or after some time,")
	fmt.Println("     so you may need to refresh them periodically")
	fmt.Println()

	fmt.Println("SECURITY WARNING:")
	fmt.Println("   - These cookies give FULL access to your Gumroad account")
	fmt.Println("   - NEVER share them with anyone")
	fmt.Println("   - Store them securely (this tool encrypts them)")
	fmt.Println()
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()
}

// ShowQuickExtractGuide shows a condensed version for experienced users
func ShowQuickExtractGuide() {
	fmt.Println("\nQuick Guide: F12 > Application tab > Cookies > app.gumroad.com")
	fmt.Println("   Need: _gumroad_app_session, _gumroad_guid, and navigator.userAgent")
	fmt.Println("   Run 'gumdl auth login --help' for detailed instructions")
}
