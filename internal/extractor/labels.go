package extractor

// Label phrases, compared after folding (lowercase, no diacritics, no
// surrounding punctuation). Longer phrases come first so that they win over
// their prefixes at the same position.
var (
	invoiceNumberLabels = []string{
		"faktura vat nr", "faktura vat numer", "faktura korygujaca nr", "faktura nr",
		"numer faktury", "nr faktury", "faktura vat", "faktura",
		"invoice number", "invoice no", "invoice",
	}
	issueDateLabels = []string{
		"data wystawienia", "data wyst", "data faktury", "wystawiono dnia", "wystawiono",
		"date of issue", "issue date", "invoice date",
	}
	saleDateLabels = []string{
		"data wykonania uslugi", "data dokonania dostawy", "data zakonczenia dostawy",
		"data sprzedazy", "data dostawy", "date of sale", "sale date", "delivery date",
	}
	dueDateLabels = []string{
		"termin platnosci", "termin zaplaty", "zaplata do", "platne do",
		"payment due", "due date",
	}
	netTotalLabels = []string{
		"wartosc netto razem", "razem netto", "suma netto", "kwota netto",
		"total net", "net total", "net amount",
	}
	vatTotalLabels = []string{
		"kwota vat razem", "razem vat", "suma vat", "kwota vat", "podatek vat",
		"total vat", "vat total", "vat amount",
	}
	grossTotalLabels = []string{
		"razem do zaplaty", "pozostalo do zaplaty", "do zaplaty", "razem brutto",
		"suma brutto", "kwota brutto", "wartosc brutto razem",
		"total amount due", "amount due", "total due", "gross total", "total gross",
	}
	vatRateLabels = []string{
		"stawka podatku", "stawka vat", "stawka", "vat rate", "tax rate",
	}
	bankAccountLabels = []string{
		"numer rachunku bankowego", "numer rachunku", "nr rachunku", "rachunek bankowy",
		"numer konta", "nr konta", "rachunek", "konto",
		"bank account", "account number", "account no", "iban",
	}
	taxIDLabels = []string{"nip ue", "nip", "vat id", "tax id", "vat no"}
	regonLabels = []string{"regon"}

	sellerHeaders = []string{"sprzedawca", "sprzedajacy", "wystawca", "dostawca", "seller", "vendor", "supplier"}
	buyerHeaders  = []string{"nabywca", "kupujacy", "buyer", "customer", "bill to"}

	tableDescriptionCues = []string{"nazwa", "opis", "towar", "towaru", "description", "item"}
	tableNumberCues      = []string{"ilosc", "il", "qty", "quantity", "cena", "netto", "price", "net"}
	tableTotalsCues      = []string{"razem", "suma", "ogolem", "total"}
)
