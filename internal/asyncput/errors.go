package asyncput

import "fmt"

var (
	errNonPositiveWatermark = fmt.Errorf("asyncput: watermark must be positive")
	errMissingDependency    = fmt.Errorf("asyncput: Send and Hash are required")
)
