package shopify

import (
	"context"
	"strconv"
)

// ZeroInventory sets the available stock of every variant of the product
// to zero at every stocked location, leaving the product active. Used for
// LOSER handling so the listing stays visible but unbuyable.
func (c *Client) ZeroInventory(ctx context.Context, productID int64) error {
	const levelsQuery = `
		query productInventory($id: ID!) {
			product(id: $id) {
				variants(first: 100) {
					nodes {
						inventoryItem {
							id
							inventoryLevels(first: 20) {
								nodes { location { id } }
							}
						}
					}
				}
			}
		}`

	var data struct {
		Product *struct {
			Variants struct {
				Nodes []struct {
					InventoryItem struct {
						ID              string `json:"id"`
						InventoryLevels struct {
							Nodes []struct {
								Location struct {
									ID string `json:"id"`
								} `json:"location"`
							} `json:"nodes"`
						} `json:"inventoryLevels"`
					} `json:"inventoryItem"`
				} `json:"nodes"`
			} `json:"variants"`
		} `json:"product"`
	}
	vars := map[string]interface{}{"id": productGID(productID)}
	if err := c.doGraphQL(ctx, levelsQuery, vars, &data); err != nil {
		return err
	}
	if data.Product == nil {
		return nil
	}

	var quantities []map[string]interface{}
	for _, v := range data.Product.Variants.Nodes {
		for _, lvl := range v.InventoryItem.InventoryLevels.Nodes {
			quantities = append(quantities, map[string]interface{}{
				"inventoryItemId": v.InventoryItem.ID,
				"locationId":      lvl.Location.ID,
				"quantity":        0,
			})
		}
	}
	if len(quantities) == 0 {
		return nil
	}

	const mutation = `
		mutation setQuantities($input: InventorySetQuantitiesInput!) {
			inventorySetQuantities(input: $input) {
				userErrors { field message }
			}
		}`

	var result struct {
		InventorySetQuantities struct {
			UserErrors []struct {
				Message string `json:"message"`
			} `json:"userErrors"`
		} `json:"inventorySetQuantities"`
	}
	input := map[string]interface{}{
		"input": map[string]interface{}{
			"name":                  "available",
			"reason":                "correction",
			"ignoreCompareQuantity": true,
			"quantities":            quantities,
		},
	}
	if err := c.doGraphQL(ctx, mutation, input, &result); err != nil {
		return err
	}
	if errs := result.InventorySetQuantities.UserErrors; len(errs) > 0 {
		return graphqlUserError("shopify.ZeroInventory", errs[0].Message)
	}
	return nil
}

// ReorderCollection issues a single reorder mutation moving the given
// products to their target positions. The platform applies the moves
// asynchronously; the returned job id can be polled but the pipelines
// treat acceptance as success.
func (c *Client) ReorderCollection(ctx context.Context, collectionID string, moves []Move) (string, error) {
	if len(moves) == 0 {
		return "", nil
	}

	const mutation = `
		mutation reorder($id: ID!, $moves: [MoveInput!]!) {
			collectionReorderProducts(id: $id, moves: $moves) {
				job { id }
				userErrors { field message }
			}
		}`

	moveInputs := make([]map[string]interface{}, 0, len(moves))
	for _, m := range moves {
		moveInputs = append(moveInputs, map[string]interface{}{
			"id":          productGID(m.ProductID),
			"newPosition": strconv.Itoa(m.NewPosition),
		})
	}

	var result struct {
		CollectionReorderProducts struct {
			Job *struct {
				ID string `json:"id"`
			} `json:"job"`
			UserErrors []struct {
				Message string `json:"message"`
			} `json:"userErrors"`
		} `json:"collectionReorderProducts"`
	}
	vars := map[string]interface{}{
		"id":    collectionGID(collectionID),
		"moves": moveInputs,
	}
	if err := c.doGraphQL(ctx, mutation, vars, &result); err != nil {
		return "", err
	}
	if errs := result.CollectionReorderProducts.UserErrors; len(errs) > 0 {
		return "", graphqlUserError("shopify.ReorderCollection", errs[0].Message)
	}
	if result.CollectionReorderProducts.Job == nil {
		return "", nil
	}
	return result.CollectionReorderProducts.Job.ID, nil
}
