package orthoveg

import "errors"

var (
	ErrGdalDriverOpen    = errors.New("gdal driver open err")
	ErrVoidSrid          = errors.New("gdal layer with void srid")
	ErrCRSMismatch       = errors.New("boundary and raster crs mismatch")
	ErrInvalidTif        = errors.New("invalid tif")
	ErrWrongTif          = errors.New("tif bands not enough")
	ErrTifReadFailed     = errors.New("tif read failed")
	ErrTifWriteFailed    = errors.New("tif write failed")
	ErrEmptyTif          = errors.New("empty tif")
	ErrMisalignedRasters = errors.New("rasters not aligned")
	ErrNoInputs          = errors.New("no input rasters")
	ErrNoValidPixels     = errors.New("no valid pixels")
	ErrZoneSkipped       = errors.New("zone has no usable condition")
	ErrInvalidComparator = errors.New("invalid comparator")
	ErrInvalidZone       = errors.New("invalid zone definition")
	ErrUnknownProfile    = errors.New("unknown threshold profile")
)
