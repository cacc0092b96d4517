package achievement

// FallbackIcon is shown for icon names the client does not know.
const FallbackIcon = "Trophy"

var knownIcons = map[string]bool{
	"Award":       true,
	"CheckCircle": true,
	"Flame":       true,
	"Flower":      true,
	"Leaf":        true,
	"ListChecks":  true,
	"Moon":        true,
	"ShieldCheck": true,
	"Sprout":      true,
	"Star":        true,
	"Sunrise":     true,
	"Target":      true,
	"Trees":       true,
	"TrendingUp":  true,
	"Trophy":      true,
	"Zap":         true,
}

// ResolveIcon maps an icon identifier to one the clients can render.
func ResolveIcon(name string) string {
	if knownIcons[name] {
		return name
	}
	return FallbackIcon
}
