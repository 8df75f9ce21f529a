package tesseract

var TokensFromBoxes = tokensFromBoxes
