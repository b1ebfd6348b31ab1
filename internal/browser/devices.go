// internal/browser/devices.go
package browser

import (
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/device"
)

// deviceProfiles maps the device names the caller may configure to emulation
// profiles. Names follow the upstream device descriptor registry.
var deviceProfiles = map[string]chromedp.Device{
	"Galaxy S5":       device.GalaxyS5,
	"iPad":            device.IPad,
	"iPad Mini":       device.IPadMini,
	"iPad Pro":        device.IPadPro,
	"iPhone 6":        device.IPhone6,
	"iPhone 6 Plus":   device.IPhone6Plus,
	"iPhone 7":        device.IPhone7,
	"iPhone 8":        device.IPhone8,
	"iPhone 8 Plus":   device.IPhone8Plus,
	"iPhone SE":       device.IPhoneSE,
	"iPhone X":        device.IPhoneX,
	"Kindle Fire HDX": device.KindleFireHDX,
	"Nexus 5X":        device.Nexus5X,
	"Nexus 10":        device.Nexus10,
	"Pixel 2":         device.Pixel2,
	"Pixel 2 XL":      device.Pixel2XL,
}

// LookupDevice resolves a configured device name to an emulation profile.
func LookupDevice(name string) (chromedp.Device, bool) {
	d, ok := deviceProfiles[name]
	return d, ok
}
