package notify

import (
	"fmt"

	"github.com/maltedev/restock-monitor/internal/models"
)

// Compose renders the alert text for an outcome. The second return value is
// false for outcomes that are not alert-worthy.
func Compose(product string, item models.Item, outcome models.Outcome) (string, bool) {
	switch outcome.Status {
	case models.StatusAvailable:
		return fmt.Sprintf("🔔 **%s Available!**\n%s", product, item.URL), true
	case models.StatusMarkerMissing:
		return fmt.Sprintf("🚨 **Class Not Found Alert!**\nThe class '%s' was not found on %s. This likely means the website layout has changed.",
			item.Marker, item.URL), true
	case models.StatusMarkerEmpty:
		return fmt.Sprintf("⚠️ **Class Not Found Warning!**\nThe class '%s' was found but contains no elements on %s. This might indicate a layout change.",
			item.Marker, item.URL), true
	case models.StatusLoadTimeout:
		return fmt.Sprintf("⏰ **Timeout Alert!**\nThe page at %s took too long to load.", item.URL), true
	case models.StatusUnexpectedError:
		return fmt.Sprintf("❌ **Error Alert!**\nAn error occurred while checking %s: %s", item.URL, outcome.Detail), true
	default:
		return "", false
	}
}
