package sim

import (
	"path"
	"regexp"
	"strings"
)

var assetFile = regexp.MustCompile(`(<(?:mesh|texture|hfield|skin)\b[^>]*?\bfile=")([^"]*)(")`)

// assetPackages are the path segments that mark the start of a packaged
// asset tree inside an absolute path recorded on another machine.
var assetPackages = []string{"robosuite", "robocasa"}

// PostprocessModelXML points asset file references recorded on another
// machine at assetRoot. A reference such as
// /home/x/robosuite/models/assets/arm.stl becomes
// <assetRoot>/robosuite/models/assets/arm.stl. References without a package
// segment, and every reference when assetRoot is empty, are left alone.
func PostprocessModelXML(xml, assetRoot string) string {
	if assetRoot == "" {
		return xml
	}
	return assetFile.ReplaceAllStringFunc(xml, func(m string) string {
		sub := assetFile.FindStringSubmatch(m)
		return sub[1] + relocate(sub[2], assetRoot) + sub[3]
	})
}

func relocate(file, root string) string {
	parts := strings.Split(file, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		for _, pkg := range assetPackages {
			if parts[i] == pkg {
				return path.Join(append([]string{root}, parts[i:]...)...)
			}
		}
	}
	return file
}
