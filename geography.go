package grib

// gridTypeDimKind classifies a gridType string into the three geography
// shapes spec.md §4.5 point 5 distinguishes.
type gridTypeDimKind int

const (
	geoRegular gridTypeDimKind = iota // 1-D (latitude, longitude) from distinct coordinate vectors
	geoCurvilinear                    // 2-D (y, x) from full lat/lon arrays
	geoFlat                           // 1-D "values" dim, no coordinate reshaping
)

var regularGridTypes = map[string]bool{"regular_ll": true, "regular_gg": true}
var curvilinearGridTypes = map[string]bool{
	"rotated_ll": true, "rotated_gg": true, "lambert": true,
	"lambert_azimuthal": true, "albers": true, "polar_stereographic": true,
}

func classifyGridType(gridType string) gridTypeDimKind {
	if regularGridTypes[gridType] {
		return geoRegular
	}
	if curvilinearGridTypes[gridType] {
		return geoCurvilinear
	}
	return geoFlat
}

// buildGeographyCoordinates implements spec.md §4.5 point 5. It returns the
// geography dimension names (outer to inner, empty for the flat case beyond
// "values"), their sizes, any coordinate Variables to attach, and the
// gridShape OnDiskArray should use for its inner axes.
func buildGeographyCoordinates(sub *FileIndex, stream *FileStream, enabled bool) (dims []string, sizes map[string]int, coords map[string]Variable, gridShape []int, err error) {
	sizes = make(map[string]int)
	coords = make(map[string]Variable)

	if len(sub.Entries) == 0 || len(sub.Entries[0].Offsets) == 0 {
		return []string{"values"}, sizes, coords, []int{0}, nil
	}
	rec, rerr := stream.Get(sub.Entries[0].Offsets[0])
	if rerr != nil {
		return []string{"values"}, sizes, coords, []int{0}, nil
	}

	gridType, _ := rec.GetString("gridType", "")
	numPoints, _ := rec.GetInt("numberOfPoints", 0)

	if !enabled {
		sizes["values"] = numPoints
		return []string{"values"}, sizes, coords, []int{numPoints}, nil
	}

	switch classifyGridType(gridType) {
	case geoRegular:
		latsRaw, err1 := rec.Get("distinctLatitudes")
		lonsRaw, err2 := rec.Get("distinctLongitudes")
		if err1 != nil || err2 != nil {
			sizes["values"] = numPoints
			return []string{"values"}, sizes, coords, []int{numPoints}, nil
		}
		lats := latsRaw.([]float64)
		lons := lonsRaw.([]float64)
		if len(lats) > 1 && lats[0] < lats[len(lats)-1] {
			reverseFloat64(lats)
		}
		sizes["latitude"] = len(lats)
		sizes["longitude"] = len(lons)
		coords["latitude"] = NewCoordinateVariable("latitude", "latitude", lats, map[string]interface{}{
			"standard_name": "latitude", "units": "degrees_north",
		})
		coords["longitude"] = NewCoordinateVariable("longitude", "longitude", lons, map[string]interface{}{
			"standard_name": "longitude", "units": "degrees_east",
		})
		return []string{"latitude", "longitude"}, sizes, coords, []int{len(lats), len(lons)}, nil

	case geoCurvilinear:
		ny, _ := rec.GetInt("Ny", 0)
		nx, _ := rec.GetInt("Nx", 0)
		if ny == 0 || nx == 0 {
			ny, nx = 1, numPoints
		}
		latsRaw, err1 := rec.Get("latitudes")
		lonsRaw, err2 := rec.Get("longitudes")
		sizes["y"] = ny
		sizes["x"] = nx
		if err1 == nil && err2 == nil {
			lats := latsRaw.([]float64)
			lons := lonsRaw.([]float64)
			coords["latitude"] = Variable{
				Name:       "latitude",
				Data:       DenseData{DimNames: []string{"y", "x"}, DataShape: []int{ny, nx}, Values: lats},
				Attributes: map[string]interface{}{"standard_name": "latitude", "units": "degrees_north"},
			}
			coords["longitude"] = Variable{
				Name:       "longitude",
				Data:       DenseData{DimNames: []string{"y", "x"}, DataShape: []int{ny, nx}, Values: lons},
				Attributes: map[string]interface{}{"standard_name": "longitude", "units": "degrees_east"},
			}
		}
		return []string{"y", "x"}, sizes, coords, []int{ny, nx}, nil

	default:
		sizes["values"] = numPoints
		return []string{"values"}, sizes, coords, []int{numPoints}, nil
	}
}

func reverseFloat64(s []float64) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
