package preprocess

var (
	EstimateSkew    = estimateSkew
	Rotate          = rotate
	MedianFilter    = medianFilter
	StretchContrast = stretchContrast
	ScaleFactor     = scaleFactor
)
