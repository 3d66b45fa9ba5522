package testutil

import (
	"encoding/base64"
	"fmt"
)

// NFeXML renders a minimal nfeProc document. Empty arguments omit the
// corresponding element.
func NFeXML(number, emitterCNPJ, dhEmi string) string {
	ide := ""
	if number != "" {
		ide += fmt.Sprintf("<nNF>%s</nNF>", number)
	}
	if dhEmi != "" {
		ide += fmt.Sprintf("<dhEmi>%s</dhEmi>", dhEmi)
	}
	emit := "<xNome>Empresa Exemplo LTDA</xNome>"
	if emitterCNPJ != "" {
		emit = fmt.Sprintf("<CNPJ>%s</CNPJ>", emitterCNPJ) + emit
	}
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">` +
		`<NFe><infNFe Id="NFe35240511222333000144550010000012341000012345" versao="4.00">` +
		`<ide><cUF>35</cUF>` + ide + `</ide>` +
		`<emit>` + emit + `</emit>` +
		`<dest><CNPJ>99888777000166</CNPJ></dest>` +
		`</infNFe></NFe></nfeProc>`
}

// NFeBase64 is NFeXML encoded the way the document API returns it.
func NFeBase64(number, emitterCNPJ, dhEmi string) string {
	return base64.StdEncoding.EncodeToString([]byte(NFeXML(number, emitterCNPJ, dhEmi)))
}
