package server

import (
	"net/http"

	"healthstack/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (s *Server) createOrderHandler(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	order, err := s.orders.CreateOrder(c.Request.Context(), currentUser(c), req.toDomain())
	if err != nil {
		if order != nil {
			// Stored but not announced; give operators the id to reconcile.
			status := statusForKind(domain.KindOf(err))
			writeProblem(c, problem{
				Title:   titleForStatus(status),
				Detail:  "order was saved but the order-created notification could not be sent",
				Status:  status,
				OrderID: order.ID.String(),
			})
			return
		}
		s.writeError(c, err)
		return
	}

	c.Header("Location", "/api/order/"+order.ID.String())
	c.JSON(http.StatusCreated, toOrderReadDto(order))
}

func (s *Server) getOrderHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		// Not a valid id, so it cannot name an order.
		s.writeError(c, domain.NewError(domain.KindNotFound, "get order", domain.ErrOrderNotFound))
		return
	}

	order, err := s.orders.GetOrder(c.Request.Context(), currentUser(c), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderReadDto(order))
}

func (s *Server) listOrdersHandler(c *gin.Context) {
	var q ListOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBindError(c, err)
		return
	}

	page, err := s.orders.ListOrders(c.Request.Context(), currentUser(c), domain.PageQuery{
		Page:     q.Page,
		PageSize: q.PageSize,
		OrderBy:  q.OrderBy,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := PageDto[OrderReadDto]{Count: page.Count, Data: make([]OrderReadDto, len(page.Data))}
	for i := range page.Data {
		out.Data[i] = toOrderReadDto(&page.Data[i])
	}
	c.JSON(http.StatusOK, out)
}
