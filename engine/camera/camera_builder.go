package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraBuilderOption is a functional option for configuring a Camera.
type CameraBuilderOption func(*orbitCamera)

// WithRadius sets the initial orbit radius (distance from target).
//
// Parameters:
//   - radius: distance from the orbit target
//
// Returns:
//   - CameraBuilderOption: functional option to set the radius
func WithRadius(radius float32) CameraBuilderOption {
	return func(c *orbitCamera) {
		c.goal.radius = radius
	}
}

// WithAzimuth sets the initial horizontal angle around the Y axis.
//
// Parameters:
//   - azimuth: horizontal angle in radians (0 = +Z axis)
//
// Returns:
//   - CameraBuilderOption: functional option to set the azimuth
func WithAzimuth(azimuth float32) CameraBuilderOption {
	return func(c *orbitCamera) {
		c.goal.azimuth = azimuth
	}
}

// WithElevation sets the initial vertical angle from the horizontal plane.
//
// Parameters:
//   - elevation: vertical angle in radians (0 = horizontal)
//
// Returns:
//   - CameraBuilderOption: functional option to set the elevation
func WithElevation(elevation float32) CameraBuilderOption {
	return func(c *orbitCamera) {
		c.goal.elevation = elevation
	}
}

// WithTarget sets the look-at/pivot point.
func WithTarget(target mgl32.Vec3) CameraBuilderOption {
	return func(c *orbitCamera) {
		c.goal.target = target
	}
}

// WithRadiusBounds sets the minimum and maximum orbit radius.
//
// Parameters:
//   - min: minimum zoom distance
//   - max: maximum zoom distance
//
// Returns:
//   - CameraBuilderOption: functional option to set radius bounds
func WithRadiusBounds(min, max float32) CameraBuilderOption {
	return func(c *orbitCamera) {
		c.minRadius = min
		c.maxRadius = max
	}
}

// WithElevationBounds sets the minimum and maximum elevation angles.
func WithElevationBounds(min, max float32) CameraBuilderOption {
	return func(c *orbitCamera) {
		c.minElevation = min
		c.maxElevation = max
	}
}

// WithMouseSensitivity sets the radians of orbit per pixel of pointer movement.
func WithMouseSensitivity(sensitivity float32) CameraBuilderOption {
	return func(c *orbitCamera) {
		c.mouseSensitivity = sensitivity
	}
}

// WithZoomSpeed sets the zoom speed multiplier.
func WithZoomSpeed(speed float32) CameraBuilderOption {
	return func(c *orbitCamera) {
		c.zoomSpeed = speed
	}
}

// WithPanSpeed sets the planar pan speed multiplier.
func WithPanSpeed(speed float32) CameraBuilderOption {
	return func(c *orbitCamera) {
		c.panSpeed = speed
	}
}

// WithSpring sets the easing spring. Higher frequencies settle faster; a damping ratio of 1
// settles without overshoot.
//
// Parameters:
//   - frequency: angular frequency of the spring
//   - damping: damping ratio
//
// Returns:
//   - CameraBuilderOption: functional option to set the spring
func WithSpring(frequency, damping float64) CameraBuilderOption {
	return func(c *orbitCamera) {
		c.frequency = frequency
		c.damping = damping
	}
}
