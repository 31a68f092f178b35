package orders

import (
	"errors"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// GenericFailure is shown when an unexpected error reaches the boundary.
const GenericFailure = "Ocurrió un error inesperado. Intenta de nuevo más tarde."

var printer = message.NewPrinter(language.MustParse("es-MX"))

// FormatMoney renders an amount as MXN with two decimals.
func FormatMoney(amount decimal.Decimal) string {
	return printer.Sprintf("$%.2f", amount.Round(2).InexactFloat64())
}

// UserMessage returns the Spanish message displayed for a failure.
func UserMessage(err error) string {
	var balanceErr *BalanceError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &balanceErr):
		return printer.Sprintf("El pago (%s) excede el saldo pendiente (%s)", FormatMoney(balanceErr.Amount), FormatMoney(balanceErr.Pending))
	case errors.Is(err, ErrOrderNotFound):
		return "Orden de compra no encontrada"
	case errors.Is(err, ErrItemNotFound):
		return "Concepto de cotización no encontrado"
	case errors.Is(err, ErrSupplierNotFound):
		return "Proveedor no encontrado"
	case errors.Is(err, ErrNoProject):
		return "La cotización no está vinculada a un proyecto"
	case errors.Is(err, ErrProjectClosed):
		return "El proyecto está cerrado; no se permiten más movimientos"
	case errors.Is(err, ErrProjectNotApproved):
		return "El proyecto debe estar aprobado para generar órdenes de compra"
	case errors.Is(err, ErrOrderAlreadyExists):
		return "Ya existe una orden de compra para este concepto"
	case errors.Is(err, ErrInvalidAmount):
		return "El monto del pago debe ser mayor a cero"
	case errors.Is(err, ErrAmountExceedsBalance):
		return "El pago excede el saldo pendiente"
	case errors.Is(err, ErrInvalidItems):
		return "La lista de artículos no es válida"
	case errors.Is(err, ErrInvalidStatus):
		return "Estatus no válido"
	case errors.Is(err, ErrInvalidTransition):
		return "No se puede regresar la orden a un estatus anterior"
	case errors.Is(err, ErrDuplicateSubmission):
		return "Este pago ya fue registrado"
	case errors.Is(err, ErrTotalBelowPaid):
		return "El total de la orden no puede ser menor a lo ya pagado"
	default:
		return GenericFailure
	}
}
