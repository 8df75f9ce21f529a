package domain

// MediaType values accepted by the pipeline.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeJPEG = "image/jpeg"
	MediaTypePNG  = "image/png"
	MediaTypeTIFF = "image/tiff"
	MediaTypeBMP  = "image/bmp"
	MediaTypeWebP = "image/webp"
	MediaTypeGIF  = "image/gif"
)

// AllowedMediaTypes lists the media types a document may declare.
var AllowedMediaTypes = map[string]bool{
	MediaTypePDF:  true,
	MediaTypeJPEG: true,
	MediaTypePNG:  true,
	MediaTypeTIFF: true,
	MediaTypeBMP:  true,
	MediaTypeWebP: true,
	MediaTypeGIF:  true,
}

// AllowedExtensions maps file extensions (without dot) to media types.
var AllowedExtensions = map[string]string{
	"pdf":  MediaTypePDF,
	"jpg":  MediaTypeJPEG,
	"jpeg": MediaTypeJPEG,
	"png":  MediaTypePNG,
	"tif":  MediaTypeTIFF,
	"tiff": MediaTypeTIFF,
	"bmp":  MediaTypeBMP,
	"webp": MediaTypeWebP,
	"gif":  MediaTypeGIF,
}

// RecognitionMode selects how the composite recognizer uses its backends.
type RecognitionMode string

const (
	ModeSequential RecognitionMode = "sequential"
	ModeParallel   RecognitionMode = "parallel"
)

// Valid reports whether m is a known mode.
func (m RecognitionMode) Valid() bool {
	return m == ModeSequential || m == ModeParallel
}

// ProcessingStatus is the terminal status of a pipeline run.
type ProcessingStatus string

const (
	StatusSuccess  ProcessingStatus = "SUCCESS"
	StatusPartial  ProcessingStatus = "PARTIAL"
	StatusFailed   ProcessingStatus = "FAILED"
	StatusRejected ProcessingStatus = "REJECTED"
)

// ErrorKind tags recognition failures so the controller can pick a transition.
type ErrorKind string

const (
	ErrorKindInitialization    ErrorKind = "initialization"
	ErrorKindProcessing        ErrorKind = "processing"
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindResourceExhausted ErrorKind = "resource_exhausted"
)

// FieldName identifies an invoice field the extractor can produce.
type FieldName string

const (
	FieldInvoiceNumber FieldName = "invoice_number"
	FieldIssueDate     FieldName = "issue_date"
	FieldSaleDate      FieldName = "sale_date"
	FieldDueDate       FieldName = "due_date"
	FieldSellerName    FieldName = "seller_name"
	FieldBuyerName     FieldName = "buyer_name"
	FieldSellerTaxID   FieldName = "seller_tax_id"
	FieldBuyerTaxID    FieldName = "buyer_tax_id"
	FieldSellerRegon   FieldName = "seller_regon"
	FieldBuyerRegon    FieldName = "buyer_regon"
	FieldNetTotal      FieldName = "net_total"
	FieldVATTotal      FieldName = "vat_total"
	FieldGrossTotal    FieldName = "gross_total"
	FieldVATRate       FieldName = "vat_rate"
	FieldBankAccount   FieldName = "bank_account"
	FieldLineItems     FieldName = "line_items"
)

// DefaultExpectedFields is the field set used for the extraction rate when
// configuration does not override it.
var DefaultExpectedFields = []FieldName{
	FieldInvoiceNumber,
	FieldIssueDate,
	FieldSaleDate,
	FieldSellerName,
	FieldBuyerName,
	FieldSellerTaxID,
	FieldBuyerTaxID,
	FieldNetTotal,
	FieldVATTotal,
	FieldGrossTotal,
}

// IsDate reports whether the field holds a calendar date.
func (f FieldName) IsDate() bool {
	return f == FieldIssueDate || f == FieldSaleDate || f == FieldDueDate
}

// IsAmount reports whether the field holds a monetary amount.
func (f FieldName) IsAmount() bool {
	return f == FieldNetTotal || f == FieldVATTotal || f == FieldGrossTotal
}
