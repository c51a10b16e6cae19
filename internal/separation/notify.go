package separation

// Notifier surfaces short, operator-facing notifications. Technical
// detail stays in the logs; the operator only sees these messages.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// NopNotifier discards all notifications
type NopNotifier struct{}

func (NopNotifier) Success(string) {}
func (NopNotifier) Error(string)   {}

// Operator-facing messages, localized to the warehouse floor
const (
	msgItemSeparated           = "Item marcado como separado"
	msgItemUnseparated         = "Item desmarcado"
	msgItemSentToPurchase      = "Item enviado para compras"
	msgItemRemovedFromPurchase = "Item removido das compras"
	msgItemNotSent             = "Item marcado como não enviado"
	msgItemPendingAgain        = "Item marcado como pendente"

	msgOrderCompleted = "Pedido concluído!"

	msgOrderNotFound      = "Pedido não encontrado"
	msgItemNotFound       = "Item ou pedido não encontrado"
	msgAccessDenied       = "Acesso negado - verifique se você está logado"
	msgCompleteForbidden  = "Você não tem permissão para finalizar este pedido"
	msgServerError        = "Erro interno do servidor"
	msgUpdateServerError  = "Erro interno do servidor ao atualizar item"
	msgNetworkError       = "Erro de conexão - verifique se o servidor está rodando"
	msgUpdateNetworkError = "Erro de conexão ao atualizar item - verifique se o servidor está rodando"
	msgCompleteNetwork    = "Erro de conexão ao finalizar pedido"

	msgReconnectExhausted = "Não foi possível reconectar ao servidor"
	msgSessionExpired     = "Sessão expirada - faça login novamente"

	// Connection indicator labels
	LabelConnected    = "Conectado"
	LabelDisconnected = "Desconectado"
)
